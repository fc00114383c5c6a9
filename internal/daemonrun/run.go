package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"millwork/internal/articles"
	"millwork/internal/config"
	"millwork/internal/daemon"
	"millwork/internal/dispatch"
	"millwork/internal/enrich"
	"millwork/internal/jobs"
	"millwork/internal/logging"
	"millwork/internal/preflight"
	"millwork/internal/services/blobstore"
	"millwork/internal/services/geocode"
	"millwork/internal/services/llm"
	"millwork/internal/services/serp"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// completedRetention is how long terminal jobs are kept before the janitor
// clears them.
const completedRetention = 7 * 24 * time.Hour

// Run starts the millwork daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("millwork-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update millwork.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "millwork.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	results := preflight.RunAll(signalCtx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("fatal", result.Fatal))
	}
	if preflight.Failed(results) {
		return fmt.Errorf("preflight failed, refusing to start")
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	registry, err := buildRegistry(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("build executor registry: %w", err)
	}
	dispatcher := dispatch.New(store, registry, cfg.Jobs, logger)

	d, err := daemon.New(cfg, store, registry, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return janitor(groupCtx, store, logger)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})

	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		return err
	}
	logger.Info("millwork daemon shutting down")
	return nil
}

// buildRegistry wires every known job type to its executor. Providers that
// are not configured still register; their executors fail the job with a
// configuration error, which is permanent and visible in the job row.
func buildRegistry(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*dispatch.Registry, error) {
	chat := llm.NewClient(cfg.LLM)
	searcher := serp.NewClient(cfg.Serp)
	geocoder := geocode.NewClient(cfg.Geocode)
	uploader := blobstore.NewClient(cfg.Blobstore)

	agents := articles.NewAgentRegistry()
	for _, agent := range []articles.Agent{
		articles.NewResearchAgent(chat, searcher),
		articles.NewWriterAgent(chat),
		articles.NewSEOAgent(chat),
		articles.NewQAAgent(chat),
	} {
		if err := agents.Register(agent); err != nil {
			return nil, err
		}
	}
	if missing := agents.MissingStages(); len(missing) > 0 {
		return nil, fmt.Errorf("article pipeline incomplete, no agent for: %s", strings.Join(missing, ", "))
	}
	personas, err := articles.NewPersonaSet(cfg.Articles)
	if err != nil {
		return nil, err
	}
	orchestrator := articles.NewOrchestrator(store, agents, personas, cfg.Articles, uploader, logger)

	registry := dispatch.NewRegistry()
	if err := registry.Register(articles.JobType, orchestrator); err != nil {
		return nil, err
	}
	if err := registry.Register(enrich.JobTypePhotoSync, enrich.NewPhotoSyncExecutor(uploader, cfg.Batch, logger)); err != nil {
		return nil, err
	}
	if err := registry.Register(enrich.JobTypeGeocodeBackfill, enrich.NewGeocodeBackfillExecutor(geocoder, cfg.Batch, logger)); err != nil {
		return nil, err
	}
	return registry, nil
}

// janitor clears old terminal jobs once an hour so the queue table stays
// small enough for the CMS polling queries.
func janitor(ctx context.Context, store *jobs.Store, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := store.ClearCompleted(ctx, completedRetention)
			if err != nil {
				logger.Warn("janitor sweep failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("cleared old terminal jobs", logging.Int64("removed", removed))
			}
		}
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "millwork.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
