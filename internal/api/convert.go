package api

import (
	"time"

	"millwork/internal/jobs"
)

// JobFromModel converts a store job into its transport form.
func JobFromModel(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:              job.ID,
		JobType:         job.JobType,
		Status:          string(job.Status),
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		FailedItems:     job.FailedItems,
		PercentComplete: job.PercentComplete(),
		Payload:         job.Payload,
		Result:          job.Result,
		LastError:       job.LastError,
		CreatedBy:       job.CreatedBy,
		NextRetryAt:     formatTimePtr(job.NextRetryAt),
		ScheduledFor:    formatTimePtr(job.ScheduledFor),
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
		StartedAt:       formatTimePtr(job.StartedAt),
		CompletedAt:     formatTimePtr(job.CompletedAt),
	}
}

// JobsFromModels converts a job listing.
func JobsFromModels(list []*jobs.Job) []Job {
	if len(list) == 0 {
		return nil
	}
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, JobFromModel(job))
	}
	return out
}

// ProgressFromModel extracts the polling payload from a job.
func ProgressFromModel(job *jobs.Job) Progress {
	if job == nil {
		return Progress{}
	}
	return Progress{
		JobID:           job.ID,
		Status:          string(job.Status),
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		FailedItems:     job.FailedItems,
		PercentComplete: job.PercentComplete(),
		LastError:       job.LastError,
	}
}

// StepFromModel converts a pipeline step into its transport form.
func StepFromModel(step *jobs.Step) Step {
	if step == nil {
		return Step{}
	}
	return Step{
		ID:           step.ID,
		JobID:        step.JobID,
		AgentType:    step.AgentType,
		PersonaID:    step.PersonaID,
		Iteration:    step.Iteration,
		Status:       string(step.Status),
		Output:       step.Output,
		InputTokens:  step.InputTokens,
		OutputTokens: step.OutputTokens,
		TotalTokens:  step.TotalTokens,
		Logs:         step.Logs,
		ErrorMessage: step.ErrorMessage,
		CreatedAt:    formatTime(step.CreatedAt),
		StartedAt:    formatTimePtr(step.StartedAt),
		CompletedAt:  formatTimePtr(step.CompletedAt),
	}
}

// StepsFromModels converts a step listing.
func StepsFromModels(list []*jobs.Step) []Step {
	if len(list) == 0 {
		return nil
	}
	out := make([]Step, 0, len(list))
	for _, step := range list {
		out = append(out, StepFromModel(step))
	}
	return out
}

// ArticleFromModel converts article pipeline telemetry into its transport form.
func ArticleFromModel(state *jobs.ArticleState) *ArticleState {
	if state == nil {
		return nil
	}
	return &ArticleState{
		JobID:            state.JobID,
		Keyword:          state.Keyword,
		CurrentAgent:     state.CurrentAgent,
		CurrentIteration: state.CurrentIteration,
		MaxIterations:    state.MaxIterations,
		TotalTokens:      state.TotalTokens,
		FinalOutput:      state.FinalOutput,
		PageID:           state.PageID,
		UpdatedAt:        formatTime(state.UpdatedAt),
	}
}

// LogFromModel converts a system log row into its transport form.
func LogFromModel(entry *jobs.LogEntry) LogEntry {
	if entry == nil {
		return LogEntry{}
	}
	return LogEntry{
		ID:        entry.ID,
		Category:  entry.Category,
		Level:     entry.Level,
		Message:   entry.Message,
		Details:   entry.Details,
		JobID:     entry.JobID,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

// LogsFromModels converts a log listing.
func LogsFromModels(list []*jobs.LogEntry) []LogEntry {
	if len(list) == 0 {
		return nil
	}
	out := make([]LogEntry, 0, len(list))
	for _, entry := range list {
		out = append(out, LogFromModel(entry))
	}
	return out
}

// StatsFromModel converts aggregate job counts.
func StatsFromModel(stats jobs.Stats) Stats {
	return Stats{
		Total:      stats.Total,
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Cancelled:  stats.Cancelled,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
