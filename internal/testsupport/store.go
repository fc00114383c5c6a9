package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"millwork/internal/config"
	"millwork/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, jobType string, payload json.RawMessage) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobs.NewJob{JobType: jobType, Payload: payload})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// ClaimJob claims a specific job for tests and fails on error.
func ClaimJob(t testing.TB, store *jobs.Store, id int64) *jobs.Job {
	t.Helper()

	job, err := store.ClaimByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.ClaimByID: %v", err)
	}
	return job
}
