package services

import "context"

type contextKey string

const (
	jobIDKey   contextKey = "job_id"
	jobTypeKey contextKey = "job_type"
	runIDKey   contextKey = "run_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(jobIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithJobType annotates context with the job type name.
func WithJobType(ctx context.Context, jobType string) context.Context {
	if jobType == "" {
		return ctx
	}
	return context.WithValue(ctx, jobTypeKey, jobType)
}

// JobTypeFromContext returns the job type name if present.
func JobTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with a dispatcher run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the dispatcher run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
