package blobstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"millwork/internal/config"
	"millwork/internal/services"
	"millwork/internal/services/blobstore"
)

func TestUploadStoresObjectUnderBucketAndKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/buckets/pages/objects/articles%2Froof-repair.md" &&
			r.URL.Path != "/buckets/pages/objects/articles/roof-repair.md" {
			t.Errorf("unexpected path: %q", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "text/markdown" {
			t.Errorf("unexpected content type: %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "# Roof Repair" {
			t.Errorf("unexpected body: %q", body)
		}
		w.Write([]byte(`{"id": "obj-17", "key": "articles/roof-repair.md", "url": "https://cdn.example.com/obj-17"}`))
	}))
	defer server.Close()

	client := blobstore.NewClient(config.Blobstore{BaseURL: server.URL, APIKey: "blob-key", Bucket: "pages"})
	object, err := client.Upload(context.Background(), "articles/roof-repair.md", "text/markdown", []byte("# Roof Repair"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if object.ID != "obj-17" || object.URL == "" {
		t.Fatalf("unexpected object: %+v", object)
	}
}

func TestUploadClassifiesRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := blobstore.NewClient(config.Blobstore{BaseURL: server.URL, APIKey: "blob-key", Bucket: "pages"})
	_, err := client.Upload(context.Background(), "k", "image/jpeg", []byte{1})
	if !services.IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestUploadValidatesInput(t *testing.T) {
	client := blobstore.NewClient(config.Blobstore{BaseURL: "http://127.0.0.1:1", APIKey: "k", Bucket: "b"})
	if _, err := client.Upload(context.Background(), "", "text/plain", []byte("x")); !services.IsFatal(err) {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
	if _, err := client.Upload(context.Background(), "key", "text/plain", nil); !services.IsFatal(err) {
		t.Fatalf("expected validation error for empty body, got %v", err)
	}
}
