package geocode_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"millwork/internal/config"
	"millwork/internal/services"
	"millwork/internal/services/geocode"
)

func TestLookupReturnsFirstResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "100 Congress Ave, Austin TX" {
			t.Errorf("unexpected address: %q", got)
		}
		w.Write([]byte(`{"results": [
            {"latitude": 30.2638, "longitude": -97.7444, "formatted": "100 Congress Ave, Austin, TX 78701"},
            {"latitude": 0, "longitude": 0, "formatted": "elsewhere"}
        ]}`))
	}))
	defer server.Close()

	client := geocode.NewClient(config.Geocode{BaseURL: server.URL, APIKey: "geo-key"})
	loc, err := client.Lookup(context.Background(), "100 Congress Ave, Austin TX")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if loc.Latitude != 30.2638 || loc.Formatted == "" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestLookupClassifiesProviderFailures(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == http.StatusOK {
			w.Write([]byte(`{"results": []}`))
			return
		}
		http.Error(w, "nope", status)
	}))
	defer server.Close()
	client := geocode.NewClient(config.Geocode{BaseURL: server.URL, APIKey: "geo-key"})

	status = http.StatusTooManyRequests
	if _, err := client.Lookup(context.Background(), "somewhere"); !services.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}

	status = http.StatusOK
	if _, err := client.Lookup(context.Background(), "somewhere"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for empty results, got %v", err)
	}
}
