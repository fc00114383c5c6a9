// Package batch runs per-item work sequentially with throttling. Executors that
// touch external rate-limited APIs (photo sync, geocode backfill) wrap their
// item loop in a Runner so one slow or angry provider cannot wedge the daemon.
package batch

import (
	"context"
	"log/slog"
	"time"

	"millwork/internal/logging"
	"millwork/internal/services"
)

// Runner throttles sequential item processing. Zero values disable the
// corresponding limit.
type Runner struct {
	// ItemTimeout bounds each item's processing time.
	ItemTimeout time.Duration
	// ItemDelay is the pause between consecutive items.
	ItemDelay time.Duration
	// Progress, when set, is called after every item with cumulative counts.
	// It is best-effort; the runner ignores its cost and never skips it.
	Progress func(processed, failed, total int)
	// Logger receives per-item failures. Nil disables logging.
	Logger *slog.Logger
}

// Result summarizes one batch run.
type Result struct {
	// Processed counts items that completed without error.
	Processed int
	// Failed counts items that errored and were skipped.
	Failed int
	// RateLimited is true when the provider returned a rate-limit error and
	// the run stopped early.
	RateLimited bool
	// NextIndex is the index of the first unattempted item; it equals
	// len(items) when the run covered everything. The rate-limited item itself
	// was attempted and is counted neither processed, failed, nor remaining.
	NextIndex int
}

// Run processes items in order. A rate-limit error stops the run immediately
// and reports where to resume; any other item error is counted and skipped.
// Context cancellation stops between items and returns the context error.
func Run[T any](ctx context.Context, r Runner, items []T, fn func(context.Context, T) error) (Result, error) {
	result := Result{NextIndex: len(items)}
	total := len(items)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.NextIndex = i
			return result, err
		}
		if i > 0 && r.ItemDelay > 0 {
			select {
			case <-time.After(r.ItemDelay):
			case <-ctx.Done():
				result.NextIndex = i
				return result, ctx.Err()
			}
		}

		err := runOne(ctx, r.ItemTimeout, item, fn)
		switch {
		case err == nil:
			result.Processed++
		case services.IsRateLimited(err):
			result.RateLimited = true
			result.NextIndex = i + 1
			if r.Logger != nil {
				r.Logger.Warn("batch stopped by rate limit",
					logging.Int("item_index", i),
					logging.Error(err))
			}
			return result, nil
		default:
			result.Failed++
			if r.Logger != nil {
				r.Logger.Warn("batch item failed",
					logging.Int("item_index", i),
					logging.Error(err))
			}
		}

		if r.Progress != nil {
			r.Progress(result.Processed, result.Failed, total)
		}
	}
	return result, nil
}

func runOne[T any](ctx context.Context, timeout time.Duration, item T, fn func(context.Context, T) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, item)
}
