package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"millwork/internal/articles"
	"millwork/internal/jobs"
)

// Workflow errors surfaced to CLI and HTTP callers.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrInvalidInput = errors.New("invalid input")
)

// CreateJob validates a create request and inserts the job.
func CreateJob(ctx context.Context, store *jobs.Store, req CreateJobRequest) (Job, error) {
	jobType := strings.TrimSpace(req.JobType)
	if jobType == "" {
		return Job{}, fmt.Errorf("%w: job_type is required", ErrInvalidInput)
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return Job{}, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidInput)
	}

	var scheduledFor *time.Time
	if value := strings.TrimSpace(req.ScheduledFor); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return Job{}, fmt.Errorf("%w: scheduled_for must be RFC3339: %v", ErrInvalidInput, err)
		}
		scheduledFor = &parsed
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = "api"
	}

	job, err := store.Create(ctx, jobs.NewJob{
		JobType:      jobType,
		Payload:      req.Payload,
		CreatedBy:    createdBy,
		ScheduledFor: scheduledFor,
		MaxAttempts:  req.MaxAttempts,
	})
	if err != nil {
		return Job{}, err
	}
	return JobFromModel(job), nil
}

// ListJobs returns jobs matching the given status names and type, newest
// first. Unknown status names are rejected.
func ListJobs(ctx context.Context, store *jobs.Store, statuses []string, jobType string, limit, offset int) (JobListResponse, error) {
	filter := jobs.Filter{
		JobType: strings.TrimSpace(jobType),
		Limit:   limit,
		Offset:  offset,
	}
	for _, raw := range statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			return JobListResponse{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	list, err := store.List(ctx, filter)
	if err != nil {
		return JobListResponse{}, err
	}
	return JobListResponse{Jobs: JobsFromModels(list)}, nil
}

// DescribeJob returns a job with its pipeline steps and article telemetry
// when present.
func DescribeJob(ctx context.Context, store *jobs.Store, id int64) (*JobResponse, error) {
	job, err := store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	resp := &JobResponse{Job: JobFromModel(job)}
	steps, err := store.StepsForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	resp.Steps = StepsFromModels(steps)

	if job.JobType == articles.JobType {
		state, err := store.ArticleStateForJob(ctx, id)
		if err != nil {
			return nil, err
		}
		resp.Article = ArticleFromModel(state)
	}
	return resp, nil
}

// JobProgress returns the polling payload for one job.
func JobProgress(ctx context.Context, store *jobs.Store, id int64) (Progress, error) {
	job, err := store.GetByID(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	if job == nil {
		return Progress{}, ErrJobNotFound
	}
	return ProgressFromModel(job), nil
}

// CancelJob cancels a pending or processing job and returns its new state.
func CancelJob(ctx context.Context, store *jobs.Store, id int64) (Job, error) {
	job, err := store.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job == nil {
		return Job{}, ErrJobNotFound
	}
	if err := store.Cancel(ctx, id); err != nil {
		return Job{}, err
	}
	updated, err := store.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return JobFromModel(updated), nil
}

// RetryJob clears a retry-pending job's backoff so the next trigger tick
// picks it up immediately.
func RetryJob(ctx context.Context, store *jobs.Store, id int64) (Job, error) {
	job, err := store.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job == nil {
		return Job{}, ErrJobNotFound
	}
	if err := store.ForceRetryNow(ctx, id); err != nil {
		return Job{}, err
	}
	updated, err := store.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return JobFromModel(updated), nil
}

// SystemLog returns recent system log entries, optionally filtered by
// category.
func SystemLog(ctx context.Context, store *jobs.Store, category string, limit int) (LogResponse, error) {
	entries, err := store.RecentLog(ctx, strings.TrimSpace(category), limit)
	if err != nil {
		return LogResponse{}, err
	}
	return LogResponse{Entries: LogsFromModels(entries)}, nil
}

// JobStats aggregates job counts, optionally for one job type.
func JobStats(ctx context.Context, store *jobs.Store, jobType string) (Stats, error) {
	stats, err := store.Stats(ctx, strings.TrimSpace(jobType))
	if err != nil {
		return Stats{}, err
	}
	return StatsFromModel(stats), nil
}

// ClearCompleted deletes terminal jobs older than the cutoff and reports how
// many rows went away.
func ClearCompleted(ctx context.Context, store *jobs.Store, olderThan time.Duration) (int64, error) {
	return store.ClearCompleted(ctx, olderThan)
}
