package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"millwork/internal/jobs"
)

// ErrDuplicateRegistration indicates two executors were registered for the
// same job type.
var ErrDuplicateRegistration = errors.New("executor already registered for job type")

// ProgressFunc lets an executor report item counters while running. Reports
// are best-effort; the dispatcher never fails a job over a dropped update.
type ProgressFunc func(jobs.ProgressUpdate)

// Requeue asks the dispatcher to insert a follow-up job of the same type once
// the current job is terminal. Executors that hit a provider rate limit use it
// to hand back their remaining work without violating the one-active-job-per-
// type constraint.
type Requeue struct {
	Payload any
	After   time.Duration
}

// Outcome is the successful result of an execution.
type Outcome struct {
	Result  any
	Requeue *Requeue
}

// Executor runs one job type.
type Executor interface {
	Execute(ctx context.Context, job *jobs.Job, report ProgressFunc) (Outcome, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *jobs.Job, report ProgressFunc) (Outcome, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, job *jobs.Job, report ProgressFunc) (Outcome, error) {
	return f(ctx, job, report)
}

// Registry maps job types to executors. Instances are built at process start;
// tests construct their own rather than sharing globals.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds an executor to a job type.
func (r *Registry) Register(jobType string, exec Executor) error {
	if jobType == "" {
		return errors.New("job type is required")
	}
	if exec == nil {
		return fmt.Errorf("nil executor for job type %q", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[jobType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, jobType)
	}
	r.executors[jobType] = exec
	return nil
}

// Resolve looks up the executor for a job type.
func (r *Registry) Resolve(jobType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[jobType]
	return exec, ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for jobType := range r.executors {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
