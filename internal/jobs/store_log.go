package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendLog writes one entry to the append-only system log. jobID may be nil
// for events not tied to a job.
func (s *Store) AppendLog(ctx context.Context, category, level, message string, details json.RawMessage, jobID *int64) error {
	if level == "" {
		level = "info"
	}
	var jobRef any
	if jobID != nil {
		jobRef = *jobID
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO system_log (category, level, message, details_json, job_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		category, level, message, nullableJSON(details), jobRef, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	return nil
}

// RecentLog returns the newest log entries, optionally filtered by category,
// newest first.
func (s *Store) RecentLog(ctx context.Context, category string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, category, level, message, details_json, job_id, created_at FROM system_log`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("read system log: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var (
			entry      LogEntry
			details    sql.NullString
			jobRef     sql.NullInt64
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Category, &entry.Level, &entry.Message, &details, &jobRef, &createdRaw); err != nil {
			return nil, err
		}
		if details.Valid {
			entry.Details = []byte(details.String)
		}
		if jobRef.Valid {
			id := jobRef.Int64
			entry.JobID = &id
		}
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
