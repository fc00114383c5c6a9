package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"millwork/internal/config"
	"millwork/internal/jobs"
	"millwork/internal/logging"
	"millwork/internal/services"
)

// Dispatcher claims jobs from the store and runs them through registered
// executors. It owns the single failure boundary: executors return errors,
// the dispatcher decides between retry and permanent failure.
type Dispatcher struct {
	store        *jobs.Store
	registry     *Registry
	backoff      jobs.Backoff
	stuckTimeout time.Duration
	logger       *slog.Logger
}

// New constructs a dispatcher.
func New(store *jobs.Store, registry *Registry, cfg config.Jobs, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	stuck := time.Duration(cfg.StuckTimeoutMinutes) * time.Minute
	if stuck <= 0 {
		stuck = 30 * time.Minute
	}
	return &Dispatcher{
		store:        store,
		registry:     registry,
		backoff:      jobs.NewBackoff(cfg.RetryBackoffMinutes),
		stuckTimeout: stuck,
		logger:       logging.WithComponent(logger, "dispatch"),
	}
}

// RunNext reaps stale jobs, claims the oldest eligible pending job (optionally
// restricted to one type), and executes it to a terminal status. It returns
// the finished job, or nil when nothing was claimable.
func (d *Dispatcher) RunNext(ctx context.Context, jobType string) (*jobs.Job, error) {
	if reaped, err := d.store.ReapStale(ctx, d.stuckTimeout, d.backoff); err != nil {
		d.logger.Warn("stale job sweep failed", logging.Error(err))
	} else if reaped.Retried+reaped.Failed > 0 {
		d.logger.Info("reaped stale jobs",
			logging.Int("retried", reaped.Retried),
			logging.Int("failed", reaped.Failed))
		d.systemLog(ctx, "warning", fmt.Sprintf("reaped %d stale jobs (%d retried, %d failed)",
			reaped.Retried+reaped.Failed, reaped.Retried, reaped.Failed), nil)
	}

	job, err := d.store.ClaimNext(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	return d.run(ctx, job)
}

// RunByID claims one specific pending job and executes it. Claim conflicts
// (already processing, terminal, not yet eligible) surface as
// jobs.ErrNotClaimable and never cause a double execution.
func (d *Dispatcher) RunByID(ctx context.Context, id int64) (*jobs.Job, error) {
	job, err := d.store.ClaimByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, job)
}

func (d *Dispatcher) run(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithJobType(ctx, job.JobType)
	ctx = services.WithRunID(ctx, uuid.NewString())
	log := logging.WithContext(ctx, d.logger).With(
		logging.Int(logging.FieldAttempt, job.Attempts))

	exec, ok := d.registry.Resolve(job.JobType)
	if !ok {
		message := fmt.Sprintf("no executor registered for job type %q", job.JobType)
		log.Error("executor missing")
		d.systemLog(ctx, "error", message, &job.ID)
		return d.store.Fail(ctx, job.ID, message, true, d.backoff)
	}

	log.Info("job started")
	outcome, execErr := d.execute(ctx, exec, job)
	if execErr != nil {
		permanent := services.IsFatal(execErr)
		failed, failErr := d.store.Fail(ctx, job.ID, execErr.Error(), permanent, d.backoff)
		if failErr != nil {
			// The job moved out of processing while we ran it, most likely a
			// cancel. The cancelled status wins; the late failure only gets
			// logged.
			log.Warn("discarding result for job no longer processing", logging.Error(execErr))
			d.systemLog(ctx, "warning", "discarded late failure after cancel: "+execErr.Error(), &job.ID)
			return d.store.GetByID(ctx, job.ID)
		}
		if failed.Status == jobs.StatusPending {
			log.Warn("job failed, retry scheduled",
				logging.Error(execErr),
				logging.Any("next_retry_at", failed.NextRetryAt))
		} else {
			log.Error("job failed permanently", logging.Error(execErr))
		}
		d.systemLog(ctx, "error", execErr.Error(), &job.ID)
		return failed, nil
	}

	var result json.RawMessage
	if outcome.Result != nil {
		encoded, err := json.Marshal(outcome.Result)
		if err != nil {
			message := fmt.Sprintf("encode result: %v", err)
			log.Error("result encoding failed", logging.Error(err))
			return d.store.Fail(ctx, job.ID, message, true, d.backoff)
		}
		result = encoded
	}

	if err := d.store.Complete(ctx, job.ID, result); err != nil {
		log.Warn("discarding result for job no longer processing", logging.Error(err))
		d.systemLog(ctx, "warning", "discarded late result after cancel", &job.ID)
		return d.store.GetByID(ctx, job.ID)
	}
	log.Info("job completed")

	if outcome.Requeue != nil {
		d.requeue(ctx, job, outcome.Requeue, log)
	}
	return d.store.GetByID(ctx, job.ID)
}

func (d *Dispatcher) execute(ctx context.Context, exec Executor, job *jobs.Job) (outcome Outcome, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("executor panic: %v", recovered)
		}
	}()

	report := func(update jobs.ProgressUpdate) {
		if reportErr := d.store.ReportProgress(ctx, job.ID, update); reportErr != nil {
			d.logger.Warn("progress update dropped",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(reportErr))
		}
	}
	return exec.Execute(ctx, job, report)
}

// requeue inserts the follow-up job an executor handed back. The current job
// is already terminal at this point, so the active-per-type index accepts it.
func (d *Dispatcher) requeue(ctx context.Context, job *jobs.Job, req *Requeue, log *slog.Logger) {
	var payload json.RawMessage
	if req.Payload != nil {
		encoded, err := json.Marshal(req.Payload)
		if err != nil {
			log.Error("requeue payload encoding failed", logging.Error(err))
			return
		}
		payload = encoded
	}
	var scheduledFor *time.Time
	if req.After > 0 {
		at := time.Now().Add(req.After)
		scheduledFor = &at
	}
	followUp, err := d.store.Create(ctx, jobs.NewJob{
		JobType:      job.JobType,
		Payload:      payload,
		CreatedBy:    "dispatcher",
		ScheduledFor: scheduledFor,
		MaxAttempts:  job.MaxAttempts,
	})
	if err != nil {
		log.Warn("requeue rejected", logging.Error(err))
		d.systemLog(ctx, "warning", "follow-up job rejected: "+err.Error(), &job.ID)
		return
	}
	log.Info("follow-up job queued", logging.Int64("follow_up_job_id", followUp.ID))
	d.systemLog(ctx, "info", fmt.Sprintf("queued follow-up job %d", followUp.ID), &job.ID)
}

func (d *Dispatcher) systemLog(ctx context.Context, level, message string, jobID *int64) {
	if err := d.store.AppendLog(ctx, "dispatch", level, message, nil, jobID); err != nil {
		d.logger.Warn("system log write dropped", logging.Error(err))
	}
}
