package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID              int64           `json:"id"`
	JobType         string          `json:"job_type"`
	Status          string          `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	TotalItems      int             `json:"total_items"`
	ProcessedItems  int             `json:"processed_items"`
	FailedItems     int             `json:"failed_items"`
	PercentComplete int             `json:"percent_complete"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	NextRetryAt     string          `json:"next_retry_at,omitempty"`
	ScheduledFor    string          `json:"scheduled_for,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty"`
	UpdatedAt       string          `json:"updated_at,omitempty"`
	StartedAt       string          `json:"started_at,omitempty"`
	CompletedAt     string          `json:"completed_at,omitempty"`
}

// Step describes one pipeline agent invocation.
type Step struct {
	ID           int64           `json:"id"`
	JobID        int64           `json:"job_id"`
	AgentType    string          `json:"agent_type"`
	PersonaID    string          `json:"persona_id"`
	Iteration    int             `json:"iteration"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	Logs         []string        `json:"logs,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	StartedAt    string          `json:"started_at,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
}

// ArticleState describes the pipeline telemetry row for an article job.
type ArticleState struct {
	JobID            int64           `json:"job_id"`
	Keyword          string          `json:"keyword"`
	CurrentAgent     string          `json:"current_agent,omitempty"`
	CurrentIteration int             `json:"current_iteration"`
	MaxIterations    int             `json:"max_iterations"`
	TotalTokens      int             `json:"total_tokens"`
	FinalOutput      json.RawMessage `json:"final_output,omitempty"`
	PageID           string          `json:"page_id,omitempty"`
	UpdatedAt        string          `json:"updated_at,omitempty"`
}

// LogEntry is one system log row.
type LogEntry struct {
	ID        int64           `json:"id"`
	Category  string          `json:"category"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	JobID     *int64          `json:"job_id,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// Stats aggregates job counts per status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Progress is the lightweight polling payload for a running job.
type Progress struct {
	JobID           int64  `json:"job_id"`
	Status          string `json:"status"`
	TotalItems      int    `json:"total_items"`
	ProcessedItems  int    `json:"processed_items"`
	FailedItems     int    `json:"failed_items"`
	PercentComplete int    `json:"percent_complete"`
	LastError       string `json:"last_error,omitempty"`
}

// CreateJobRequest is the POST /api/jobs body.
type CreateJobRequest struct {
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	ScheduledFor string          `json:"scheduled_for,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job with its pipeline detail when present.
type JobResponse struct {
	Job     Job           `json:"job"`
	Steps   []Step        `json:"steps,omitempty"`
	Article *ArticleState `json:"article,omitempty"`
}

// StepListResponse wraps a job's pipeline steps.
type StepListResponse struct {
	Steps []Step `json:"steps"`
}

// LogResponse wraps system log entries, newest first.
type LogResponse struct {
	Entries []LogEntry `json:"entries"`
}

// StatusResponse aggregates daemon runtime information for API consumers.
type StatusResponse struct {
	Running      bool     `json:"running"`
	JobDBPath    string   `json:"job_db_path"`
	LockFilePath string   `json:"lock_file_path"`
	JobTypes     []string `json:"job_types"`
	Jobs         Stats    `json:"jobs"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
