package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const articleColumns = "job_id, keyword, settings_json, current_agent, current_iteration, max_iterations, total_tokens, final_output_json, page_id, updated_at"

// InitArticleState creates the telemetry row for an article job. Reruns of
// the same job reset progress and output but keep total_tokens, so the count
// reflects every attempt's spend.
func (s *Store) InitArticleState(ctx context.Context, jobID int64, keyword string, settings json.RawMessage, maxIterations int) error {
	if maxIterations < 1 {
		maxIterations = 1
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO article_jobs (job_id, keyword, settings_json, current_agent, current_iteration, max_iterations, total_tokens, final_output_json, page_id, updated_at)
         VALUES (?, ?, ?, NULL, 0, ?, 0, NULL, NULL, ?)
         ON CONFLICT (job_id) DO UPDATE SET
             keyword = excluded.keyword,
             settings_json = excluded.settings_json,
             current_agent = NULL,
             current_iteration = 0,
             max_iterations = excluded.max_iterations,
             final_output_json = NULL,
             page_id = NULL,
             updated_at = excluded.updated_at`,
		jobID, keyword, nullableJSON(settings), maxIterations, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("init article state for job %d: %w", jobID, err)
	}
	return nil
}

// SetArticleProgress records which agent and iteration the pipeline is on.
// The values are telemetry for observers, not resume state.
func (s *Store) SetArticleProgress(ctx context.Context, jobID int64, agent string, iteration int) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE article_jobs SET current_agent = ?, current_iteration = ?, updated_at = ? WHERE job_id = ?`,
		nullableString(agent), iteration, formatTime(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("set article progress for job %d: %w", jobID, err)
	}
	return nil
}

// AddArticleTokens accumulates token usage across agent calls, including calls
// that failed after consuming tokens.
func (s *Store) AddArticleTokens(ctx context.Context, jobID int64, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE article_jobs SET total_tokens = total_tokens + ?, updated_at = ? WHERE job_id = ?`,
		tokens, formatTime(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("add article tokens for job %d: %w", jobID, err)
	}
	return nil
}

// FinishArticle persists the final article output and, when publishing
// succeeded, the identifier of the created page.
func (s *Store) FinishArticle(ctx context.Context, jobID int64, finalOutput json.RawMessage, pageID string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE article_jobs
         SET final_output_json = ?, page_id = ?, current_agent = NULL, updated_at = ?
         WHERE job_id = ?`,
		nullableJSON(finalOutput), nullableString(pageID), formatTime(time.Now()), jobID,
	)
	if err != nil {
		return fmt.Errorf("finish article for job %d: %w", jobID, err)
	}
	return nil
}

// ArticleState fetches the telemetry row for an article job. Returns nil when
// the job has no article state.
func (s *Store) ArticleStateForJob(ctx context.Context, jobID int64) (*ArticleState, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+articleColumns+` FROM article_jobs WHERE job_id = ?`,
		jobID,
	)

	var (
		id           int64
		keyword      string
		settings     sql.NullString
		currentAgent sql.NullString
		iteration    int
		maxIter      int
		totalTokens  int
		finalOutput  sql.NullString
		pageID       sql.NullString
		updatedRaw   sql.NullString
	)
	err := row.Scan(&id, &keyword, &settings, &currentAgent, &iteration, &maxIter, &totalTokens, &finalOutput, &pageID, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article state: %w", err)
	}

	state := &ArticleState{
		JobID:            id,
		Keyword:          keyword,
		CurrentAgent:     currentAgent.String,
		CurrentIteration: iteration,
		MaxIterations:    maxIter,
		TotalTokens:      totalTokens,
		PageID:           pageID.String,
	}
	if settings.Valid {
		state.Settings = []byte(settings.String)
	}
	if finalOutput.Valid {
		state.FinalOutput = []byte(finalOutput.String)
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}
