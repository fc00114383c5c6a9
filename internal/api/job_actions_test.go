package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"millwork/internal/jobs"
	"millwork/internal/testsupport"
)

func TestCreateJobValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := CreateJob(ctx, store, CreateJobRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing job_type, got %v", err)
	}
	if _, err := CreateJob(ctx, store, CreateJobRequest{JobType: "x", Payload: json.RawMessage(`{broken`)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad payload, got %v", err)
	}
	if _, err := CreateJob(ctx, store, CreateJobRequest{JobType: "x", ScheduledFor: "yesterday"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad schedule, got %v", err)
	}

	job, err := CreateJob(ctx, store, CreateJobRequest{JobType: "photo_sync", Payload: json.RawMessage(`{"items":[]}`)})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != "pending" || job.CreatedBy != "api" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestListJobsRejectsUnknownStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := ListJobs(context.Background(), store, []string{"sleeping"}, "", 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDescribeJobIncludesStepsAndArticleState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "write_article", json.RawMessage(`{"keyword":"roofers"}`))
	if err := store.InitArticleState(ctx, job.ID, "roofers", nil, 3); err != nil {
		t.Fatalf("InitArticleState: %v", err)
	}
	step, err := store.CreateStep(ctx, job.ID, "research", "research-default", 1, nil)
	if err != nil {
		t.Fatalf("CreateStep: %v", err)
	}

	resp, err := DescribeJob(ctx, store, job.ID)
	if err != nil {
		t.Fatalf("DescribeJob: %v", err)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].ID != step.ID {
		t.Fatalf("unexpected steps: %+v", resp.Steps)
	}
	if resp.Article == nil || resp.Article.Keyword != "roofers" {
		t.Fatalf("unexpected article state: %+v", resp.Article)
	}

	if _, err := DescribeJob(ctx, store, 9999); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetryJobClearsBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "photo_sync", nil)
	claimed := testsupport.ClaimJob(t, store, job.ID)
	if _, err := store.Fail(ctx, claimed.ID, "provider down", false, jobs.NewBackoff(nil)); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	retried, err := RetryJob(ctx, store, job.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.Status != "pending" || retried.NextRetryAt != "" {
		t.Fatalf("expected immediately claimable job, got %+v", retried)
	}
}

func TestSystemLogFiltersByCategory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.AppendLog(ctx, "dispatch", "info", "claimed", nil, nil); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := store.AppendLog(ctx, "articles", "warning", "publish failed", nil, nil); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	resp, err := SystemLog(ctx, store, "articles", 0)
	if err != nil {
		t.Fatalf("SystemLog: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Level != "warning" {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
}
