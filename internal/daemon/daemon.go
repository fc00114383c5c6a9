package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"millwork/internal/config"
	"millwork/internal/dispatch"
	"millwork/internal/jobs"
	"millwork/internal/logging"
)

// Daemon owns the background job machinery: the single-instance lock, the
// recurring dispatch trigger, and the HTTP API.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	dispatcher *dispatch.Dispatcher
	registry   *dispatch.Registry

	lockPath string
	lock     *flock.Flock

	trigger *trigger
	api     *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the daemon runtime summary exposed over the API and CLI.
type Status struct {
	Running      bool       `json:"running"`
	JobDBPath    string     `json:"job_db_path"`
	LockFilePath string     `json:"lock_file_path"`
	JobTypes     []string   `json:"job_types"`
	Jobs         jobs.Stats `json:"jobs"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, registry, and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "millworkd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "daemon"),
		store:      store,
		dispatcher: dispatcher,
		registry:   registry,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.trigger = newTrigger(d, cfg.Jobs.TriggerSchedule,
		time.Duration(cfg.Jobs.ErrorRetryInterval)*time.Second)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock and launches the trigger and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another millwork daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.trigger.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start trigger: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.trigger.stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx, d.cancel = nil, nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("millwork daemon started",
		logging.String("lock", d.lockPath),
		logging.Any("job_types", d.registry.Types()))
	return nil
}

// Stop halts the trigger and API server and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.trigger.stop()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("millwork daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address, or empty when the API is disabled or
// not yet started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status reports the daemon runtime summary.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx, "")
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		JobTypes:     d.registry.Types(),
		Jobs:         stats,
	}
}
