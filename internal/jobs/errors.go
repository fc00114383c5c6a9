package jobs

import "errors"

var (
	// ErrDuplicateActive indicates a job of the same type is already pending or
	// processing. Creation conflicts are rejected, never retried.
	ErrDuplicateActive = errors.New("a job of this type is already active")

	// ErrNotClaimable indicates the job is not in a claimable state: it is
	// already processing, terminal, or not yet eligible.
	ErrNotClaimable = errors.New("job is not claimable")

	// ErrNotProcessing indicates a completion or failure was reported for a job
	// that is no longer processing (for example after a cooperative cancel).
	ErrNotProcessing = errors.New("job is not processing")

	// ErrNotCancellable indicates the job is already terminal.
	ErrNotCancellable = errors.New("job is not cancellable")

	// ErrStepTerminal indicates a write was attempted against a step that
	// already reached a terminal status.
	ErrStepTerminal = errors.New("step already reached a terminal status")
)
