package jobs

import (
	"context"
	"fmt"
	"time"
)

// ReapResult summarizes one stuck-job sweep.
type ReapResult struct {
	Retried int
	Failed  int
}

// ReapStale detects processing jobs whose started_at is older than the timeout
// and applies the normal failure decision to each: back to pending with a retry
// delay when attempts remain, failed permanently otherwise. The daemon runs
// this once at startup and on every trigger tick, so a crash mid-execution
// never strands a job in processing.
func (s *Store) ReapStale(ctx context.Context, timeout time.Duration, backoff Backoff) (ReapResult, error) {
	ctx = ensureContext(ctx)
	cutoff := formatTime(time.Now().Add(-timeout))

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs
         WHERE status = ? AND started_at IS NOT NULL AND started_at < ?
         ORDER BY id`,
		StatusProcessing, cutoff,
	)
	if err != nil {
		return ReapResult{}, fmt.Errorf("find stale jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return ReapResult{}, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return ReapResult{}, err
	}
	rows.Close()

	var result ReapResult
	for _, id := range ids {
		job, err := s.Fail(ctx, id, fmt.Sprintf("timed out after %s in processing", timeout), false, backoff)
		if err != nil {
			// Another writer may have moved the job already; skip it.
			continue
		}
		if job.Status == StatusPending {
			result.Retried++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// ForceRetryNow clears the retry delay on a pending job so the next trigger
// picks it up immediately. Used by the operator-facing retry command.
func (s *Store) ForceRetryNow(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET next_retry_at = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		formatTime(time.Now()), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("force retry for job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %d", ErrNotClaimable, id)
	}
	return nil
}

// ClearCompleted deletes terminal jobs older than the cutoff along with their
// steps and article state (cascaded by the schema).
func (s *Store) ClearCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs
         WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		StatusCompleted, StatusFailed, StatusCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("clear completed jobs: %w", err)
	}
	return res.RowsAffected()
}
