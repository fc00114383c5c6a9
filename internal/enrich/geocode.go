package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"millwork/internal/batch"
	"millwork/internal/config"
	"millwork/internal/dispatch"
	"millwork/internal/jobs"
	"millwork/internal/logging"
	"millwork/internal/services"
	"millwork/internal/services/geocode"
)

// JobTypeGeocodeBackfill is the queue job type for contractor geocoding.
const JobTypeGeocodeBackfill = "geocode_backfill"

// AddressItem is one contractor address to geocode.
type AddressItem struct {
	ContractorID string `json:"contractor_id"`
	Address      string `json:"address"`
}

// GeocodePayload is the geocode_backfill job payload.
type GeocodePayload struct {
	Items []AddressItem `json:"items"`
}

// GeocodeResult is the geocode_backfill job result. Locations maps contractor
// id to its resolved coordinates; unresolvable addresses are counted failed.
type GeocodeResult struct {
	Processed   int                         `json:"processed"`
	Failed      int                         `json:"failed"`
	Requeued    int                         `json:"requeued"`
	RateLimited bool                        `json:"rate_limited"`
	Locations   map[string]geocode.Location `json:"locations"`
}

// Geocoder is the slice of the geocoding client the backfill needs.
type Geocoder interface {
	Configured() bool
	Lookup(ctx context.Context, address string) (*geocode.Location, error)
}

// GeocodeBackfillExecutor resolves contractor addresses to coordinates with
// the same throttled batch semantics as photo sync.
type GeocodeBackfillExecutor struct {
	geocoder Geocoder
	cfg      config.Batch
	logger   *slog.Logger
}

// NewGeocodeBackfillExecutor constructs the geocode_backfill executor.
func NewGeocodeBackfillExecutor(geocoder Geocoder, cfg config.Batch, logger *slog.Logger) *GeocodeBackfillExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GeocodeBackfillExecutor{
		geocoder: geocoder,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "geocode-backfill"),
	}
}

// Execute implements dispatch.Executor.
func (e *GeocodeBackfillExecutor) Execute(ctx context.Context, job *jobs.Job, report dispatch.ProgressFunc) (dispatch.Outcome, error) {
	var payload GeocodePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "geocode-backfill", "execute", "decode payload", err)
	}
	if len(payload.Items) == 0 {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "geocode-backfill", "execute", "no items", nil)
	}
	if e.geocoder == nil || !e.geocoder.Configured() {
		return dispatch.Outcome{}, services.Wrap(services.ErrConfiguration, "geocode-backfill", "execute", "geocoder not configured", nil)
	}

	var mu sync.Mutex
	locations := make(map[string]geocode.Location, len(payload.Items))
	total := len(payload.Items)

	runner := batch.Runner{
		ItemTimeout: time.Duration(e.cfg.ItemTimeoutSeconds) * time.Second,
		ItemDelay:   time.Duration(e.cfg.ItemDelayMillis) * time.Millisecond,
		Logger:      e.logger,
		Progress: func(processed, failed, _ int) {
			report(jobs.ProgressUpdate{
				TotalItems:     &total,
				ProcessedItems: &processed,
				FailedItems:    &failed,
			})
		},
	}

	result, err := batch.Run(ctx, runner, payload.Items, func(ctx context.Context, item AddressItem) error {
		if item.ContractorID == "" || item.Address == "" {
			return fmt.Errorf("address item missing contractor id or address")
		}
		location, err := e.geocoder.Lookup(ctx, item.Address)
		if err != nil {
			return err
		}
		mu.Lock()
		locations[item.ContractorID] = *location
		mu.Unlock()
		return nil
	})
	if err != nil {
		return dispatch.Outcome{}, err
	}

	outcome := dispatch.Outcome{Result: &GeocodeResult{
		Processed:   result.Processed,
		Failed:      result.Failed,
		RateLimited: result.RateLimited,
		Locations:   locations,
	}}
	if result.RateLimited && result.NextIndex < len(payload.Items) {
		remaining := payload.Items[result.NextIndex:]
		outcome.Result.(*GeocodeResult).Requeued = len(remaining)
		outcome.Requeue = &dispatch.Requeue{
			Payload: GeocodePayload{Items: remaining},
			After:   e.requeueDelay(),
		}
		e.logger.Info("rate limited, handing back remaining addresses",
			logging.Int("remaining", len(remaining)))
	}
	return outcome, nil
}

func (e *GeocodeBackfillExecutor) requeueDelay() time.Duration {
	minutes := e.cfg.RequeueDelayMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}
