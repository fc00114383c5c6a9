package batch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"millwork/internal/batch"
	"millwork/internal/services"
)

func TestRunStopsAtRateLimitAndReportsResumePoint(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	var attempted []int

	result, err := batch.Run(context.Background(), batch.Runner{}, items, func(_ context.Context, item int) error {
		attempted = append(attempted, item)
		if item == 2 {
			return services.Wrap(services.ErrRateLimited, "geocode", "lookup", "too many requests", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.RateLimited {
		t.Fatal("expected rate-limited result")
	}
	if result.Processed != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 processed before the limit, got %+v", result)
	}
	// The rate-limited item was attempted; only items 3 and 4 remain.
	if result.NextIndex != 3 {
		t.Fatalf("expected resume at index 3, got %d", result.NextIndex)
	}
	if len(attempted) != 3 {
		t.Fatalf("expected items 3 and 4 untouched, attempted %v", attempted)
	}
}

func TestRunCountsFailuresAndContinues(t *testing.T) {
	items := []string{"a", "b", "c"}
	var progress [][3]int

	result, err := batch.Run(context.Background(), batch.Runner{
		Progress: func(processed, failed, total int) {
			progress = append(progress, [3]int{processed, failed, total})
		},
	}, items, func(_ context.Context, item string) error {
		if item == "b" {
			return errors.New("upload rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 || result.Failed != 1 || result.RateLimited {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.NextIndex != len(items) {
		t.Fatalf("expected full coverage, next index %d", result.NextIndex)
	}
	if len(progress) != 3 {
		t.Fatalf("expected progress after every item, got %v", progress)
	}
	last := progress[len(progress)-1]
	if last != [3]int{2, 1, 3} {
		t.Fatalf("unexpected final progress: %v", last)
	}
}

func TestRunHonorsItemTimeout(t *testing.T) {
	items := []int{0}
	result, err := batch.Run(context.Background(), batch.Runner{ItemTimeout: 10 * time.Millisecond}, items, func(ctx context.Context, _ int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("expected the slow item counted as failed, got %+v", result)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []int{0, 1, 2}

	_, err := batch.Run(ctx, batch.Runner{ItemDelay: 50 * time.Millisecond}, items, func(_ context.Context, item int) error {
		if item == 0 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
