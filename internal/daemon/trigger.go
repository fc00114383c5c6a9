package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"millwork/internal/logging"
)

// trigger drives the queue on a schedule. Each tick claims and runs at most
// one job; SkipIfStillRunning keeps ticks from stacking behind a long article
// pipeline.
type trigger struct {
	daemon     *Daemon
	schedule   string
	errorRetry time.Duration
	cron       *cron.Cron
	ctx        context.Context

	// pausedUntil suppresses ticks after a dispatch error so a broken store
	// or provider is not hammered every interval. Ticks are serialized by
	// SkipIfStillRunning, so no lock is needed.
	pausedUntil time.Time
}

func newTrigger(d *Daemon, schedule string, errorRetry time.Duration) *trigger {
	return &trigger{daemon: d, schedule: schedule, errorRetry: errorRetry}
}

func (t *trigger) start(ctx context.Context) error {
	if t.schedule == "" {
		return errors.New("trigger schedule is empty")
	}
	t.ctx = ctx
	cronLog := cron.PrintfLogger(slogPrintf{logger: t.daemon.logger})
	t.cron = cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := t.cron.AddFunc(t.schedule, t.tick); err != nil {
		return fmt.Errorf("invalid trigger schedule %q: %w", t.schedule, err)
	}
	t.cron.Start()
	t.daemon.logger.Info("dispatch trigger started", logging.String("schedule", t.schedule))
	return nil
}

func (t *trigger) stop() {
	if t.cron == nil {
		return
	}
	stopCtx := t.cron.Stop()
	<-stopCtx.Done()
	t.cron = nil
}

func (t *trigger) tick() {
	ctx := t.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !t.pausedUntil.IsZero() && time.Now().Before(t.pausedUntil) {
		return
	}
	job, err := t.daemon.dispatcher.RunNext(ctx, "")
	if err != nil {
		t.pausedUntil = time.Now().Add(t.errorRetry)
		t.daemon.logger.Error("trigger dispatch failed",
			logging.Error(err),
			logging.Duration("retry_in", t.errorRetry))
		return
	}
	t.pausedUntil = time.Time{}
	if job != nil {
		t.daemon.logger.Info("trigger dispatched job",
			logging.Int64("job_id", job.ID),
			logging.String("job_type", job.JobType),
			logging.String("status", string(job.Status)))
	}
}

// slogPrintf adapts slog to the printf-style logger cron expects.
type slogPrintf struct {
	logger interface {
		Info(msg string, args ...any)
	}
}

func (l slogPrintf) Printf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
