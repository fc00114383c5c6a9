package jobs

import (
	"testing"
	"time"
)

func TestBackoffDelayRepeatsLastEntry(t *testing.T) {
	b := NewBackoff([]int{1, 5, 15, 60})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 5 * time.Minute},
		{attempt: 3, want: 15 * time.Minute},
		{attempt: 4, want: 60 * time.Minute},
		{attempt: 9, want: 60 * time.Minute},
		{attempt: 0, want: time.Minute},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDefaultsWhenUnconfigured(t *testing.T) {
	b := NewBackoff(nil)
	if got := b.Delay(2); got != 5*time.Minute {
		t.Fatalf("Delay(2) = %s, want 5m", got)
	}
	var zero Backoff
	if got := zero.Delay(1); got != time.Minute {
		t.Fatalf("zero-value Delay(1) = %s, want 1m", got)
	}
}
