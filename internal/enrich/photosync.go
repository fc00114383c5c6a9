package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"millwork/internal/batch"
	"millwork/internal/config"
	"millwork/internal/dispatch"
	"millwork/internal/jobs"
	"millwork/internal/logging"
	"millwork/internal/services"
	"millwork/internal/services/blobstore"
)

// JobTypePhotoSync is the queue job type for listing photo synchronization.
const JobTypePhotoSync = "photo_sync"

// PhotoItem is one photo to mirror into blob storage.
type PhotoItem struct {
	ListingID string `json:"listing_id"`
	URL       string `json:"url"`
}

// PhotoSyncPayload is the photo_sync job payload. A requeued follow-up job
// carries the items the rate-limited run never attempted.
type PhotoSyncPayload struct {
	Items []PhotoItem `json:"items"`
}

// PhotoSyncResult is the photo_sync job result.
type PhotoSyncResult struct {
	Processed   int  `json:"processed"`
	Failed      int  `json:"failed"`
	Requeued    int  `json:"requeued"`
	RateLimited bool `json:"rate_limited"`
}

// Uploader is the slice of the blobstore client photo sync needs.
type Uploader interface {
	Configured() bool
	Upload(ctx context.Context, key, contentType string, data []byte) (*blobstore.Object, error)
}

// PhotoSyncExecutor downloads listing photos and mirrors them into blob
// storage, one at a time, backing off to a delayed follow-up job when the
// provider rate-limits.
type PhotoSyncExecutor struct {
	uploader   Uploader
	httpClient *http.Client
	cfg        config.Batch
	logger     *slog.Logger
}

// NewPhotoSyncExecutor constructs the photo_sync executor.
func NewPhotoSyncExecutor(uploader Uploader, cfg config.Batch, logger *slog.Logger) *PhotoSyncExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PhotoSyncExecutor{
		uploader:   uploader,
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "photo-sync"),
	}
}

// Execute implements dispatch.Executor.
func (e *PhotoSyncExecutor) Execute(ctx context.Context, job *jobs.Job, report dispatch.ProgressFunc) (dispatch.Outcome, error) {
	var payload PhotoSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "photo-sync", "execute", "decode payload", err)
	}
	if len(payload.Items) == 0 {
		return dispatch.Outcome{}, services.Wrap(services.ErrValidation, "photo-sync", "execute", "no items", nil)
	}
	if e.uploader == nil || !e.uploader.Configured() {
		return dispatch.Outcome{}, services.Wrap(services.ErrConfiguration, "photo-sync", "execute", "blobstore not configured", nil)
	}

	result, err := batch.Run(ctx, e.runner(report, len(payload.Items)), payload.Items, e.syncOne)
	if err != nil {
		return dispatch.Outcome{}, err
	}

	outcome := dispatch.Outcome{Result: &PhotoSyncResult{
		Processed:   result.Processed,
		Failed:      result.Failed,
		RateLimited: result.RateLimited,
	}}
	if result.RateLimited && result.NextIndex < len(payload.Items) {
		remaining := payload.Items[result.NextIndex:]
		outcome.Result.(*PhotoSyncResult).Requeued = len(remaining)
		outcome.Requeue = &dispatch.Requeue{
			Payload: PhotoSyncPayload{Items: remaining},
			After:   e.requeueDelay(),
		}
		e.logger.Info("rate limited, handing back remaining photos",
			logging.Int("remaining", len(remaining)))
	}
	return outcome, nil
}

func (e *PhotoSyncExecutor) syncOne(ctx context.Context, item PhotoItem) error {
	if item.ListingID == "" || item.URL == "" {
		return fmt.Errorf("photo item missing listing id or url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return services.Wrap(services.ErrRateLimited, "photo-sync", "download", "source rate limit", nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("download %s: http %d", item.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read photo body: %w", err)
	}

	key := "photos/" + item.ListingID + "/" + photoFileName(item.URL)
	contentType := resp.Header.Get("Content-Type")
	if _, err := e.uploader.Upload(ctx, key, contentType, data); err != nil {
		return err
	}
	return nil
}

func (e *PhotoSyncExecutor) runner(report dispatch.ProgressFunc, total int) batch.Runner {
	return batch.Runner{
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
}

func (e *PhotoSyncExecutor) requeueDelay() time.Duration {
	minutes := e.cfg.RequeueDelayMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

func photoFileName(rawURL string) string {
	trimmed := strings.SplitN(rawURL, "?", 2)[0]
	name := path.Base(trimmed)
	if name == "" || name == "." || name == "/" {
		return "photo"
	}
	return name
}
