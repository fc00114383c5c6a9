package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"millwork/internal/api"
	"millwork/internal/config"
	"millwork/internal/dispatch"
	"millwork/internal/jobs"
	"millwork/internal/testsupport"
)

func newTestDaemon(t *testing.T, registry *dispatch.Registry) (*Daemon, *jobs.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if registry == nil {
		registry = dispatch.NewRegistry()
	}
	dispatcher := dispatch.New(store, registry, cfg.Jobs, nil)
	d, err := New(cfg, store, registry, dispatcher, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, store, cfg
}

func doRequest(t *testing.T, d *Daemon, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	d.api.server.Handler.ServeHTTP(w, req)
	return w
}

func TestCreateJobEndpointEnforcesSingleActivePerType(t *testing.T) {
	d, _, cfg := newTestDaemon(t, nil)
	token := cfg.Paths.APIToken

	body := `{"job_type":"write_article","payload":{"keyword":"deck builders"}}`
	w := doRequest(t, d, http.MethodPost, "/api/jobs", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != "pending" || resp.Job.JobType != "write_article" {
		t.Fatalf("unexpected job: %+v", resp.Job)
	}

	w = doRequest(t, d, http.MethodPost, "/api/jobs", token, body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate active job, got %d", w.Code)
	}
}

func TestCreateJobEndpointRequiresToken(t *testing.T) {
	d, _, _ := newTestDaemon(t, nil)

	w := doRequest(t, d, http.MethodPost, "/api/jobs", "", `{"job_type":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	w = doRequest(t, d, http.MethodPost, "/api/jobs", "wrong-token", `{"job_type":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	// Reads stay open.
	w = doRequest(t, d, http.MethodGet, "/api/jobs", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unauthenticated read, got %d", w.Code)
	}
}

func TestExecuteEndpointRunsJobToCompletion(t *testing.T) {
	registry := dispatch.NewRegistry()
	if err := registry.Register("noop", dispatch.ExecutorFunc(func(context.Context, *jobs.Job, dispatch.ProgressFunc) (dispatch.Outcome, error) {
		return dispatch.Outcome{Result: map[string]string{"ok": "yes"}}, nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, store, cfg := newTestDaemon(t, registry)
	job := testsupport.NewJob(t, store, "noop", nil)
	token := cfg.Paths.APIToken

	path := "/api/jobs/" + itoa(job.ID) + "/execute"
	w := doRequest(t, d, http.MethodPost, path, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != "completed" {
		t.Fatalf("expected completed job, got %q", resp.Job.Status)
	}

	// A terminal job is no longer claimable.
	w = doRequest(t, d, http.MethodPost, path, token, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 re-executing terminal job, got %d", w.Code)
	}
}

func TestCancelEndpointRejectsTerminalJob(t *testing.T) {
	d, store, cfg := newTestDaemon(t, nil)
	token := cfg.Paths.APIToken

	job := testsupport.NewJob(t, store, "photo_sync", nil)
	w := doRequest(t, d, http.MethodPost, "/api/jobs/"+itoa(job.ID)+"/cancel", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 cancelling pending job, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %q", resp.Job.Status)
	}

	w = doRequest(t, d, http.MethodPost, "/api/jobs/"+itoa(job.ID)+"/cancel", token, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling terminal job, got %d", w.Code)
	}

	w = doRequest(t, d, http.MethodPost, "/api/jobs/9999/cancel", token, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing job, got %d", w.Code)
	}
}

func TestJobDetailAndProgressEndpoints(t *testing.T) {
	d, store, _ := newTestDaemon(t, nil)
	job := testsupport.NewJob(t, store, "geocode_backfill", json.RawMessage(`{"items":[]}`))

	total, processed := 10, 4
	if err := store.ReportProgress(context.Background(), job.ID, jobs.ProgressUpdate{
		TotalItems:     &total,
		ProcessedItems: &processed,
	}); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}

	w := doRequest(t, d, http.MethodGet, "/api/jobs/"+itoa(job.ID)+"/progress", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var progress api.Progress
	if err := json.Unmarshal(w.Body.Bytes(), &progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.PercentComplete != 40 {
		t.Fatalf("expected 40%%, got %d", progress.PercentComplete)
	}

	w = doRequest(t, d, http.MethodGet, "/api/jobs/"+itoa(job.ID), "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = doRequest(t, d, http.MethodGet, "/api/jobs/9999", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing job, got %d", w.Code)
	}
}

func TestStatusAndLogEndpoints(t *testing.T) {
	d, store, _ := newTestDaemon(t, nil)
	testsupport.NewJob(t, store, "photo_sync", nil)
	if err := store.AppendLog(context.Background(), "dispatch", "info", "picked up job", nil, nil); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	w := doRequest(t, d, http.MethodGet, "/api/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Jobs.Pending != 1 {
		t.Fatalf("expected 1 pending job in stats, got %+v", status.Jobs)
	}
	if status.Running {
		t.Fatal("daemon was never started")
	}

	w = doRequest(t, d, http.MethodGet, "/api/log?category=dispatch", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var logResp api.LogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &logResp); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(logResp.Entries) != 1 || logResp.Entries[0].Message != "picked up job" {
		t.Fatalf("unexpected log entries: %+v", logResp.Entries)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
