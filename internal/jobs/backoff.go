package jobs

import "time"

// Backoff maps a failed attempt number to the delay before the next retry.
// The table is indexed by attempt (1-based); attempts beyond the table length
// repeat the last entry.
type Backoff struct {
	delays []time.Duration
}

// NewBackoff builds a backoff table from per-attempt delays in minutes.
func NewBackoff(minutes []int) Backoff {
	if len(minutes) == 0 {
		minutes = []int{1, 5, 15, 60}
	}
	delays := make([]time.Duration, len(minutes))
	for i, m := range minutes {
		delays[i] = time.Duration(m) * time.Minute
	}
	return Backoff{delays: delays}
}

// Delay returns the wait before the retry following the given attempt number.
func (b Backoff) Delay(attempt int) time.Duration {
	if len(b.delays) == 0 {
		return time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(b.delays) {
		idx = len(b.delays) - 1
	}
	return b.delays[idx]
}
