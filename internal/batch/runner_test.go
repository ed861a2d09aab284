package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

func TestRun_PreservesOrder(t *testing.T) {
	r := NewRunner(Config{Concurrency: 3})
	inputs := []int{5, 1, 4, 2, 3}

	results := Run(context.Background(), r, inputs, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})

	if len(results) != len(inputs) {
		t.Fatalf("results = %d", len(results))
	}
	for i, res := range results {
		if res.Index != i || res.Value != inputs[i]*10 || res.Err != nil {
			t.Errorf("result %d = %+v", i, res)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	r := NewRunner(Config{Concurrency: 2})
	var inFlight, peak atomic.Int32

	Run(context.Background(), r, make([]struct{}, 10), func(ctx context.Context, _ struct{}) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestRun_FailuresDoNotCancelOthers(t *testing.T) {
	r := NewRunner(Config{Concurrency: 2})
	results := Run(context.Background(), r, []string{"ok", "bad", "ok", "throttled"},
		func(ctx context.Context, s string) (string, error) {
			switch s {
			case "bad":
				return "", domain.NewFailure(domain.FailureInvalidInput, "bad input")
			case "throttled":
				return "", domain.NewFailure(domain.FailureRateLimited, "429")
			}
			return s, nil
		})

	sum := Summarize(results)
	if sum.Succeeded != 2 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ByFailure[domain.FailureInvalidInput] != 1 || sum.ByFailure[domain.FailureRateLimited] != 1 {
		t.Errorf("by failure = %v", sum.ByFailure)
	}
}

func TestRun_CancelStopsScheduling(t *testing.T) {
	r := NewRunner(Config{Concurrency: 1, RatePerSecond: 20, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	results := Run(ctx, r, make([]int, 20), func(ctx context.Context, _ int) (int, error) {
		if started.Add(1) == 2 {
			cancel()
		}
		return 0, nil
	})

	if started.Load() >= 20 {
		t.Fatal("cancellation should stop scheduling")
	}
	last := results[len(results)-1]
	if !errors.Is(last.Err, context.Canceled) || domain.KindOf(last.Err) != domain.FailureNetwork {
		t.Errorf("unscheduled item should carry a canceled failure, got %v", last.Err)
	}
}

func TestRun_RateLimit(t *testing.T) {
	r := NewRunner(Config{Concurrency: 10, RatePerSecond: 100, Burst: 1})
	start := time.Now()
	Run(context.Background(), r, make([]int, 6), func(ctx context.Context, _ int) (int, error) {
		return 0, nil
	})
	// 6 starts at 100/s with a burst of 1 need at least 50ms.
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("rate limit not applied, took %v", elapsed)
	}
}
