package jobs

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Active reports whether a status counts against the one-active-job-per-type
// invariant.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is a durable unit of asynchronous work persisted in SQLite.
type Job struct {
	ID             int64
	JobType        string
	Status         Status
	Attempts       int
	MaxAttempts    int
	NextRetryAt    *time.Time
	ScheduledFor   *time.Time
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	Payload        json.RawMessage
	Result         json.RawMessage
	LastError      string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// PercentComplete derives progress from the item counters.
func (j *Job) PercentComplete() int {
	if j == nil || j.TotalItems <= 0 {
		return 0
	}
	return int(math.Round(float64(j.ProcessedItems) / float64(j.TotalItems) * 100))
}

// RetriesExhausted reports whether another failure would be permanent.
func (j *Job) RetriesExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// NewJob describes a job to be created.
type NewJob struct {
	JobType      string
	Payload      json.RawMessage
	CreatedBy    string
	ScheduledFor *time.Time
	MaxAttempts  int
}

// ProgressUpdate carries optional counter updates from an executor. Nil fields
// leave the stored value untouched.
type ProgressUpdate struct {
	TotalItems     *int
	ProcessedItems *int
	FailedItems    *int
}

// Filter narrows job listings.
type Filter struct {
	Statuses []Status
	JobType  string
	Limit    int
	Offset   int
}

// StepStatus represents the lifecycle of a pipeline step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether a step status is final. Terminal steps are never
// mutated again.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// Step records one agent invocation inside a pipeline job.
type Step struct {
	ID           int64
	JobID        int64
	AgentType    string
	PersonaID    string
	Iteration    int
	Status       StepStatus
	Input        json.RawMessage
	Output       json.RawMessage
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Logs         []string
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// ArticleState is the pipeline-owned telemetry row for an article job. It is
// written only by the orchestrator while the owning job is processing.
type ArticleState struct {
	JobID            int64
	Keyword          string
	Settings         json.RawMessage
	CurrentAgent     string
	CurrentIteration int
	MaxIterations    int
	TotalTokens      int
	FinalOutput      json.RawMessage
	PageID           string
	UpdatedAt        time.Time
}

// LogEntry is one row in the append-only system log.
type LogEntry struct {
	ID        int64
	Category  string
	Level     string
	Message   string
	Details   json.RawMessage
	JobID     *int64
	CreatedAt time.Time
}

// Stats aggregates job counts per status for one job type (or all types when
// JobType is empty).
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
