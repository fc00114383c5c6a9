package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const stepColumns = "id, job_id, agent_type, persona_id, iteration, status, input_json, output_json, input_tokens, output_tokens, total_tokens, logs_json, error_message, created_at, started_at, completed_at"

// CreateStep inserts a pending step for an agent invocation.
func (s *Store) CreateStep(ctx context.Context, jobID int64, agentType, personaID string, iteration int, input json.RawMessage) (*Step, error) {
	if iteration < 1 {
		iteration = 1
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO job_steps (job_id, agent_type, persona_id, iteration, status, input_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, agentType, nullableString(personaID), iteration,
		StepPending,
		nullableJSON(input),
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert step: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetStep(ctx, id)
}

// StartStep moves a pending step to running.
func (s *Store) StartStep(ctx context.Context, stepID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE job_steps SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		StepRunning, formatTime(time.Now()), stepID, StepPending,
	)
	if err != nil {
		return fmt.Errorf("start step %d: %w", stepID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: step %d", ErrStepTerminal, stepID)
	}
	return nil
}

// StepResult carries the outcome of an agent invocation.
type StepResult struct {
	Status       StepStatus
	Output       json.RawMessage
	InputTokens  int
	OutputTokens int
	ErrorMessage string
}

// FinishStep records a terminal outcome for a running step. Total tokens are
// derived from the input and output counts. Finishing an already-terminal step
// is rejected so a late writer can never overwrite a recorded outcome.
func (s *Store) FinishStep(ctx context.Context, stepID int64, result StepResult) error {
	if !result.Status.Terminal() {
		return fmt.Errorf("finish step %d: %q is not a terminal step status", stepID, result.Status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE job_steps
         SET status = ?, output_json = ?, input_tokens = ?, output_tokens = ?,
             total_tokens = ?, error_message = ?, completed_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		result.Status,
		nullableJSON(result.Output),
		result.InputTokens,
		result.OutputTokens,
		result.InputTokens+result.OutputTokens,
		nullableString(result.ErrorMessage),
		formatTime(time.Now()),
		stepID, StepPending, StepRunning,
	)
	if err != nil {
		return fmt.Errorf("finish step %d: %w", stepID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: step %d", ErrStepTerminal, stepID)
	}
	return nil
}

// AppendStepLog appends a line to the step's log list. Logs are stored as a
// JSON array so the API can return them without reparsing free text.
func (s *Store) AppendStepLog(ctx context.Context, stepID int64, line string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin step log tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		var raw sql.NullString
		var status StepStatus
		row := tx.QueryRowContext(ctx, `SELECT logs_json, status FROM job_steps WHERE id = ?`, stepID)
		if err := row.Scan(&raw, &status); err != nil {
			return fmt.Errorf("read step %d logs: %w", stepID, err)
		}
		if status.Terminal() {
			return fmt.Errorf("%w: step %d", ErrStepTerminal, stepID)
		}

		var lines []string
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &lines); err != nil {
				lines = nil
			}
		}
		lines = append(lines, line)
		encoded, err := json.Marshal(lines)
		if err != nil {
			return fmt.Errorf("encode step logs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE job_steps SET logs_json = ? WHERE id = ?`, string(encoded), stepID); err != nil {
			return fmt.Errorf("append step log: %w", err)
		}
		return tx.Commit()
	})
}

// GetStep fetches one step by identifier. Returns nil when no row exists.
func (s *Store) GetStep(ctx context.Context, stepID int64) (*Step, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+stepColumns+` FROM job_steps WHERE id = ?`, stepID)
	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}
	return step, nil
}

// StepsForJob returns a job's steps in creation order.
func (s *Store) StepsForJob(ctx context.Context, jobID int64) ([]*Step, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+stepColumns+` FROM job_steps WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []*Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

func scanStep(scanner interface{ Scan(dest ...any) error }) (*Step, error) {
	var (
		id           int64
		jobID        int64
		agentType    string
		personaID    sql.NullString
		iteration    int
		statusStr    string
		input        sql.NullString
		output       sql.NullString
		inputTokens  int
		outputTokens int
		totalTokens  int
		logsRaw      sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&agentType,
		&personaID,
		&iteration,
		&statusStr,
		&input,
		&output,
		&inputTokens,
		&outputTokens,
		&totalTokens,
		&logsRaw,
		&errorMessage,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	step := &Step{
		ID:           id,
		JobID:        jobID,
		AgentType:    agentType,
		PersonaID:    personaID.String,
		Iteration:    iteration,
		Status:       StepStatus(statusStr),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  totalTokens,
		ErrorMessage: errorMessage.String,
		StartedAt:    parseNullableTime(startedRaw),
		CompletedAt:  parseNullableTime(completedRaw),
	}
	if input.Valid {
		step.Input = []byte(input.String)
	}
	if output.Valid {
		step.Output = []byte(output.String)
	}
	if logsRaw.Valid && logsRaw.String != "" {
		_ = json.Unmarshal([]byte(logsRaw.String), &step.Logs)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		step.CreatedAt = created
	}
	return step, nil
}
