package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, job_type, status, attempts, max_attempts, next_retry_at, scheduled_for, total_items, processed_items, failed_items, payload_json, result_json, last_error, created_by, created_at, updated_at, started_at, completed_at"

// Create inserts a new pending job. The partial unique index on (job_type)
// rejects the insert when a job of the same type is already pending or
// processing, which keeps the check-then-insert atomic under concurrent
// callers.
func (s *Store) Create(ctx context.Context, req NewJob) (*Job, error) {
	if req.JobType == "" {
		return nil, errors.New("job type is required")
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            job_type, status, attempts, max_attempts, scheduled_for,
            payload_json, created_by, created_at, updated_at
        ) VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		req.JobType,
		StatusPending,
		maxAttempts,
		nullableTime(req.ScheduledFor),
		nullableJSON(req.Payload),
		nullableString(req.CreatedBy),
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: job type %q", ErrDuplicateActive, req.JobType)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when no row exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest eligible pending job, optionally
// restricted to one job type. Eligibility: next_retry_at and scheduled_for have
// passed, and no job of the same type is currently processing. The selection
// and transition happen in a single UPDATE statement, so two concurrent claims
// can never take the same row or the same job type.
func (s *Store) ClaimNext(ctx context.Context, jobType string) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())

	var id int64
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, started_at = ?, updated_at = ?
             WHERE id = (
                 SELECT j.id FROM jobs j
                 WHERE j.status = ?
                   AND (j.next_retry_at IS NULL OR j.next_retry_at <= ?)
                   AND (j.scheduled_for IS NULL OR j.scheduled_for <= ?)
                   AND (? = '' OR j.job_type = ?)
                   AND NOT EXISTS (
                       SELECT 1 FROM jobs p
                       WHERE p.job_type = j.job_type AND p.status = ?
                   )
                 ORDER BY j.created_at, j.id
                 LIMIT 1
             ) AND status = ?
             RETURNING id`,
			StatusProcessing, now, now,
			StatusPending,
			now,
			now,
			jobType, jobType,
			StatusProcessing,
			StatusPending,
		)
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ClaimByID claims one specific pending job. Claiming a job that is already
// processing or terminal is a no-op error, never a double execution.
func (s *Store) ClaimByID(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = attempts + 1, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?
           AND (next_retry_at IS NULL OR next_retry_at <= ?)
           AND (scheduled_for IS NULL OR scheduled_for <= ?)
           AND NOT EXISTS (
               SELECT 1 FROM jobs p
               WHERE p.job_type = (SELECT job_type FROM jobs WHERE id = ?)
                 AND p.status = ? AND p.id != ?
           )`,
		StatusProcessing, now, now,
		id, StatusPending,
		now,
		now,
		id,
		StatusProcessing, id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		job, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if job == nil {
			return nil, fmt.Errorf("%w: job %d not found", ErrNotClaimable, id)
		}
		return nil, fmt.Errorf("%w: job %d is %s", ErrNotClaimable, id, job.Status)
	}
	return s.GetByID(ctx, id)
}

// Complete marks a processing job completed and persists its result. A job that
// was cancelled mid-run is left untouched; the late result is dropped, which is
// the accepted cooperative-cancel race.
func (s *Store) Complete(ctx context.Context, id int64, result []byte) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, result_json = ?, last_error = NULL,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableJSON(result),
		now, now,
		id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %d", ErrNotProcessing, id)
	}
	return nil
}

// Fail records an execution failure. When attempts remain and the failure is
// not permanent, the job returns to pending with next_retry_at computed from
// the backoff table; otherwise it is failed for good and next_retry_at stays
// null.
func (s *Store) Fail(ctx context.Context, id int64, message string, permanent bool, backoff Backoff) (*Job, error) {
	ctx = ensureContext(ctx)
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %d not found", ErrNotProcessing, id)
	}
	if job.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: job %d is %s", ErrNotProcessing, id, job.Status)
	}

	now := time.Now()
	retry := !permanent && job.Attempts < job.MaxAttempts

	if retry {
		nextRetry := now.Add(backoff.Delay(job.Attempts))
		_, err = s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, next_retry_at = ?, last_error = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusPending,
			formatTime(nextRetry),
			message,
			formatTime(now),
			id, StatusProcessing,
		)
	} else {
		_, err = s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET status = ?, next_retry_at = NULL, last_error = ?,
                 completed_at = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusFailed,
			message,
			formatTime(now),
			formatTime(now),
			id, StatusProcessing,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("fail job %d: %w", id, err)
	}
	return s.GetByID(ctx, id)
}

// Cancel marks a pending or processing job cancelled. Cancellation is advisory:
// a running executor is not interrupted.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled,
		now, now,
		id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %d", ErrNotCancellable, id)
	}
	return nil
}

// ReportProgress updates item counters. Callers treat this as a best-effort
// side channel; a failed write must never abort the executor.
func (s *Store) ReportProgress(ctx context.Context, id int64, update ProgressUpdate) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET total_items = COALESCE(?, total_items),
             processed_items = COALESCE(?, processed_items),
             failed_items = COALESCE(?, failed_items),
             updated_at = ?
         WHERE id = ?`,
		nullableInt(update.TotalItems),
		nullableInt(update.ProcessedItems),
		nullableInt(update.FailedItems),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("report progress for job %d: %w", id, err)
	}
	return nil
}

// List returns jobs matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.JobType != "" {
		clauses = append(clauses, `job_type = ?`)
		args = append(args, filter.JobType)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + joinClauses(clauses)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Stats returns job counts grouped by status, optionally per job type.
func (s *Store) Stats(ctx context.Context, jobType string) (Stats, error) {
	query := `SELECT status, COUNT(1) FROM jobs`
	var args []any
	if jobType != "" {
		query += ` WHERE job_type = ?`
		args = append(args, jobType)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		case StatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, clause := range clauses[1:] {
		out += ` AND ` + clause
	}
	return out
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		jobType      string
		statusStr    string
		attempts     int
		maxAttempts  int
		nextRetryRaw sql.NullString
		scheduledRaw sql.NullString
		totalItems   int
		processed    int
		failed       int
		payload      sql.NullString
		result       sql.NullString
		lastError    sql.NullString
		createdBy    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&statusStr,
		&attempts,
		&maxAttempts,
		&nextRetryRaw,
		&scheduledRaw,
		&totalItems,
		&processed,
		&failed,
		&payload,
		&result,
		&lastError,
		&createdBy,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		JobType:        jobType,
		Status:         Status(statusStr),
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		NextRetryAt:    parseNullableTime(nextRetryRaw),
		ScheduledFor:   parseNullableTime(scheduledRaw),
		TotalItems:     totalItems,
		ProcessedItems: processed,
		FailedItems:    failed,
		LastError:      lastError.String,
		CreatedBy:      createdBy.String,
		StartedAt:      parseNullableTime(startedRaw),
		CompletedAt:    parseNullableTime(completedRaw),
	}
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if result.Valid {
		job.Result = []byte(result.String)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
