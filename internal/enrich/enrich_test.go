package enrich_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"millwork/internal/config"
	"millwork/internal/enrich"
	"millwork/internal/jobs"
	"millwork/internal/services"
	"millwork/internal/services/blobstore"
	"millwork/internal/services/geocode"
)

type captureUploader struct {
	keys []string
}

func (u *captureUploader) Configured() bool { return true }

func (u *captureUploader) Upload(_ context.Context, key, _ string, _ []byte) (*blobstore.Object, error) {
	u.keys = append(u.keys, key)
	return &blobstore.Object{ID: key, Key: key}, nil
}

func photoJob(t *testing.T, items []enrich.PhotoItem) *jobs.Job {
	t.Helper()
	payload, err := json.Marshal(enrich.PhotoSyncPayload{Items: items})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return &jobs.Job{ID: 1, JobType: enrich.JobTypePhotoSync, Payload: payload}
}

func TestPhotoSyncUploadsDownloadedPhotos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	uploader := &captureUploader{}
	executor := enrich.NewPhotoSyncExecutor(uploader, config.Batch{}, nil)
	job := photoJob(t, []enrich.PhotoItem{
		{ListingID: "l-1", URL: server.URL + "/a.jpg"},
		{ListingID: "l-2", URL: server.URL + "/b.jpg?size=large"},
	})

	var lastProcessed int
	outcome, err := executor.Execute(context.Background(), job, func(update jobs.ProgressUpdate) {
		if update.ProcessedItems != nil {
			lastProcessed = *update.ProcessedItems
		}
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := outcome.Result.(*enrich.PhotoSyncResult)
	if result.Processed != 2 || result.Failed != 0 || result.RateLimited {
		t.Fatalf("unexpected result: %+v", result)
	}
	if outcome.Requeue != nil {
		t.Fatal("expected no requeue on clean run")
	}
	if lastProcessed != 2 {
		t.Fatalf("expected progress reported, got %d", lastProcessed)
	}
	if len(uploader.keys) != 2 || uploader.keys[0] != "photos/l-1/a.jpg" || uploader.keys[1] != "photos/l-2/b.jpg" {
		t.Fatalf("unexpected upload keys: %v", uploader.keys)
	}
}

func TestPhotoSyncRequeuesRemainderOnRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	uploader := &captureUploader{}
	executor := enrich.NewPhotoSyncExecutor(uploader, config.Batch{RequeueDelayMinutes: 10}, nil)
	items := make([]enrich.PhotoItem, 5)
	for i := range items {
		items[i] = enrich.PhotoItem{ListingID: "l", URL: server.URL + "/p.jpg"}
	}

	outcome, err := executor.Execute(context.Background(), photoJob(t, items), func(jobs.ProgressUpdate) {})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := outcome.Result.(*enrich.PhotoSyncResult)
	if !result.RateLimited || result.Processed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// Items 4 and 5 go back; the rate-limited item 3 was attempted.
	if result.Requeued != 2 {
		t.Fatalf("expected 2 items requeued, got %d", result.Requeued)
	}
	if outcome.Requeue == nil {
		t.Fatal("expected requeue outcome")
	}
	if outcome.Requeue.After != 10*time.Minute {
		t.Fatalf("unexpected requeue delay: %s", outcome.Requeue.After)
	}
	requeued := outcome.Requeue.Payload.(enrich.PhotoSyncPayload)
	if len(requeued.Items) != 2 {
		t.Fatalf("unexpected requeue payload: %+v", requeued)
	}
}

func TestPhotoSyncRejectsEmptyPayload(t *testing.T) {
	executor := enrich.NewPhotoSyncExecutor(&captureUploader{}, config.Batch{}, nil)
	_, err := executor.Execute(context.Background(), photoJob(t, nil), func(jobs.ProgressUpdate) {})
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal validation error, got %v", err)
	}
}

type scriptedGeocoder struct {
	calls int
	// errAt maps the 1-based call number to the error returned.
	errAt map[int]error
}

func (g *scriptedGeocoder) Configured() bool { return true }

func (g *scriptedGeocoder) Lookup(_ context.Context, _ string) (*geocode.Location, error) {
	g.calls++
	if err, ok := g.errAt[g.calls]; ok {
		return nil, err
	}
	return &geocode.Location{Latitude: 30.0, Longitude: -97.0, Formatted: "Austin, TX"}, nil
}

func TestGeocodeBackfillCollectsLocationsAndSkipsFailures(t *testing.T) {
	geocoder := &scriptedGeocoder{errAt: map[int]error{
		2: services.Wrap(services.ErrNotFound, "geocode", "lookup", "no results", nil),
	}}
	executor := enrich.NewGeocodeBackfillExecutor(geocoder, config.Batch{}, nil)
	payload, _ := json.Marshal(enrich.GeocodePayload{Items: []enrich.AddressItem{
		{ContractorID: "c-1", Address: "100 Congress Ave"},
		{ContractorID: "c-2", Address: "nowhere"},
		{ContractorID: "c-3", Address: "200 Main St"},
	}})
	job := &jobs.Job{ID: 2, JobType: enrich.JobTypeGeocodeBackfill, Payload: payload}

	outcome, err := executor.Execute(context.Background(), job, func(jobs.ProgressUpdate) {})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := outcome.Result.(*enrich.GeocodeResult)
	if result.Processed != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %v", result.Locations)
	}
	if _, ok := result.Locations["c-2"]; ok {
		t.Fatal("failed address should not produce a location")
	}
}

func TestGeocodeBackfillRequeuesOnRateLimit(t *testing.T) {
	geocoder := &scriptedGeocoder{errAt: map[int]error{
		1: services.Wrap(services.ErrRateLimited, "geocode", "lookup", "too many requests", nil),
	}}
	executor := enrich.NewGeocodeBackfillExecutor(geocoder, config.Batch{}, nil)
	payload, _ := json.Marshal(enrich.GeocodePayload{Items: []enrich.AddressItem{
		{ContractorID: "c-1", Address: "a"},
		{ContractorID: "c-2", Address: "b"},
	}})
	job := &jobs.Job{ID: 3, JobType: enrich.JobTypeGeocodeBackfill, Payload: payload}

	outcome, err := executor.Execute(context.Background(), job, func(jobs.ProgressUpdate) {})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := outcome.Result.(*enrich.GeocodeResult)
	if !result.RateLimited || result.Processed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if outcome.Requeue == nil {
		t.Fatal("expected requeue outcome")
	}
	requeued := outcome.Requeue.Payload.(enrich.GeocodePayload)
	if len(requeued.Items) != 1 || requeued.Items[0].ContractorID != "c-2" {
		t.Fatalf("unexpected requeue payload: %+v", requeued)
	}
}
