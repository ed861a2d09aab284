package routing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
)

type scriptedExecutor struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
	calls    int
}

func (e *scriptedExecutor) Execute(ctx context.Context, op provider.Operation) domain.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.calls
	e.calls++
	if i >= len(e.outcomes) {
		i = len(e.outcomes) - 1
	}
	out := e.outcomes[i]
	if out.Failure != nil {
		f := *out.Failure
		out.Failure = &f
	}
	return out
}

func fastPolicy(maxRetries int) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func failure(kind domain.FailureKind) domain.Outcome {
	return domain.Failed(domain.NewFailure(kind, "test"), time.Millisecond)
}

func TestShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig)

	tests := []struct {
		name    string
		kind    domain.FailureKind
		attempt int
		expect  bool
	}{
		{"rate limited first attempt", domain.FailureRateLimited, 0, true},
		{"network second retry", domain.FailureNetwork, 2, true},
		{"unavailable exhausted", domain.FailureServiceUnavailable, 3, false},
		{"unauthorized", domain.FailureUnauthorized, 0, false},
		{"invalid input", domain.FailureInvalidInput, 0, false},
		{"unknown", domain.FailureUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RetryState{Attempt: tt.attempt}
			if got := policy.ShouldRetry(domain.NewFailure(tt.kind, ""), state); got != tt.expect {
				t.Errorf("ShouldRetry(%s, attempt=%d) = %v, want %v", tt.kind, tt.attempt, got, tt.expect)
			}
		})
	}
}

func TestShouldRetry_CanceledIsTerminal(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig)
	if policy.ShouldRetry(domain.CanceledFailure(context.Canceled), &RetryState{}) {
		t.Error("canceled failure must not be retried")
	}
}

func TestNextDelay_Exponential(t *testing.T) {
	cfg := DefaultRetryConfig
	cfg.Jitter = 0
	policy := NewRetryPolicy(cfg)

	state := &RetryState{}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	var total time.Duration
	for i, w := range want {
		got := policy.NextDelay(state, domain.NewFailure(domain.FailureNetwork, ""))
		if got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
		total += got
	}
	if state.Attempt != len(want) {
		t.Errorf("Attempt = %d, want %d", state.Attempt, len(want))
	}
	if state.TotalDelay != total {
		t.Errorf("TotalDelay = %v, want %v", state.TotalDelay, total)
	}
}

func TestNextDelay_RetryAfterWins(t *testing.T) {
	cfg := DefaultRetryConfig
	cfg.Jitter = 0
	policy := NewRetryPolicy(cfg)

	f := domain.NewFailure(domain.FailureRateLimited, "")
	f.RetryAfter = 7 * time.Second

	if got := policy.NextDelay(&RetryState{}, f); got != 7*time.Second {
		t.Errorf("expected retry-after to raise delay to 7s, got %v", got)
	}

	f.RetryAfter = 500 * time.Millisecond
	if got := policy.NextDelay(&RetryState{Attempt: 2}, f); got != 4*time.Second {
		t.Errorf("expected backoff 4s over shorter hint, got %v", got)
	}
}

func TestNextDelay_Jitter(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig)

	policy.float = func() float64 { return 0 }
	if got := policy.NextDelay(&RetryState{}, nil); got != 800*time.Millisecond {
		t.Errorf("low jitter = %v, want 800ms", got)
	}

	policy.float = func() float64 { return 0.999999 }
	got := policy.NextDelay(&RetryState{}, nil)
	if got < 1199*time.Millisecond || got > 1200*time.Millisecond {
		t.Errorf("high jitter = %v, want ~1.2s", got)
	}
}

func TestNextDelay_JitterAtCap(t *testing.T) {
	cfg := DefaultRetryConfig
	cfg.MaxDelay = 10 * time.Second
	policy := NewRetryPolicy(cfg)

	policy.float = func() float64 { return 0 }
	if got := policy.NextDelay(&RetryState{Attempt: 8}, nil); got != 10*time.Second {
		t.Errorf("capped delay with zero draw = %v, want 10s", got)
	}

	policy.float = func() float64 { return 0.5 }
	if got := policy.NextDelay(&RetryState{Attempt: 8}, nil); got != 9*time.Second {
		t.Errorf("capped delay = %v, want 9s", got)
	}

	policy.float = func() float64 { return 0.999999 }
	if got := policy.NextDelay(&RetryState{Attempt: 8}, nil); got < 8*time.Second || got > 8001*time.Millisecond {
		t.Errorf("capped delay = %v, want ~8s", got)
	}
}

func TestNewRetryPolicy_NarrowsJitter(t *testing.T) {
	tests := []struct {
		multiple float64
		jitter   float64
		want     float64
	}{
		{2, 0.2, 0.2},
		{2, 0.5, 1.0 / 3},
		{3, 0.9, 0.5},
		{1, 0.2, 0},
	}

	for _, tt := range tests {
		got := NewRetryPolicy(RetryConfig{BackoffMultiple: tt.multiple, Jitter: tt.jitter}).Config().Jitter
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("multiple %v jitter %v: got %v, want %v", tt.multiple, tt.jitter, got, tt.want)
		}
	}
}

func TestRetryPolicy_NonDecreasingBelowCapWithJitter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		multiple := rapid.Float64Range(1, 4).Draw(t, "multiple")
		policy := NewRetryPolicy(RetryConfig{
			MaxRetries:      10,
			BaseDelay:       100 * time.Millisecond,
			MaxDelay:        24 * time.Hour,
			BackoffMultiple: multiple,
			Jitter:          rapid.Float64Range(0, 1).Draw(t, "jitter"),
		})

		// Worst case: a high draw followed by a low one.
		high := true
		policy.float = func() float64 {
			high = !high
			if high {
				return 0
			}
			return 0.999999
		}

		state := &RetryState{}
		prev := time.Duration(0)
		for range 10 {
			d := policy.NextDelay(state, nil)
			if d < prev-time.Microsecond {
				t.Fatalf("delay decreased from %v to %v", prev, d)
			}
			prev = d
		}
	})
}

func TestRetryPolicy_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Duration(rapid.IntRange(1, 5000).Draw(t, "baseMs")) * time.Millisecond
		maxDelay := base * time.Duration(rapid.IntRange(1, 100).Draw(t, "capFactor"))
		maxRetries := rapid.IntRange(0, 10).Draw(t, "maxRetries")
		jitter := rapid.Float64Range(0, 0.5).Draw(t, "jitter")

		policy := NewRetryPolicy(RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  base,
			MaxDelay:   maxDelay,
			Jitter:     jitter,
		})

		f := domain.NewFailure(domain.FailureServiceUnavailable, "")
		state := &RetryState{}
		retries := 0
		for policy.ShouldRetry(f, state) {
			d := policy.NextDelay(state, f)
			if d < 0 || d > maxDelay {
				t.Fatalf("delay %v outside [0, %v]", d, maxDelay)
			}
			retries++
			if retries > maxRetries {
				t.Fatalf("retried %d times with max %d", retries, maxRetries)
			}
		}
		if retries != maxRetries {
			t.Fatalf("retries = %d, want %d", retries, maxRetries)
		}

		nonRetryable := domain.NewFailure(domain.FailureUnauthorized, "")
		if policy.ShouldRetry(nonRetryable, &RetryState{}) {
			t.Fatal("unauthorized must never be retried")
		}
	})
}

func TestRetryPolicy_MonotonicWithoutJitter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Duration(rapid.IntRange(1, 2000).Draw(t, "baseMs")) * time.Millisecond
		policy := NewRetryPolicy(RetryConfig{
			MaxRetries: 20,
			BaseDelay:  base,
			MaxDelay:   time.Minute,
		})

		state := &RetryState{}
		prev := time.Duration(0)
		for range 20 {
			d := policy.NextDelay(state, nil)
			if d < prev {
				t.Fatalf("delay decreased from %v to %v", prev, d)
			}
			prev = d
		}
	})
}

func TestWait_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Wait(ctx, time.Hour); err == nil {
		t.Fatal("expected error from canceled context")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly")
	}
}

func TestCallWithRetry_SucceedsAfterRateLimit(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []domain.Outcome{
		failure(domain.FailureRateLimited),
		failure(domain.FailureRateLimited),
		domain.Succeeded("ok", time.Millisecond),
	}}

	var hooks int
	out, attempts := CallWithRetry(context.Background(), exec, provider.Operation{Kind: domain.KindSentiment}, fastPolicy(3),
		func(provider.Operation, *domain.Failure, int, time.Duration) { hooks++ })

	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Failure)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if hooks != 2 {
		t.Errorf("retry hook called %d times, want 2", hooks)
	}
	if out.Elapsed != 3*time.Millisecond {
		t.Errorf("elapsed = %v, want accumulated 3ms", out.Elapsed)
	}
}

func TestCallWithRetry_Exhausted(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []domain.Outcome{failure(domain.FailureNetwork)}}

	out, attempts := CallWithRetry(context.Background(), exec, provider.Operation{}, fastPolicy(3), nil)

	if out.OK() {
		t.Fatal("expected failure")
	}
	if attempts != 4 || exec.calls != 4 {
		t.Errorf("attempts = %d, calls = %d, want 4", attempts, exec.calls)
	}
	if out.Failure.Kind != domain.FailureNetwork || out.Failure.Attempts != 4 {
		t.Errorf("unexpected failure %v", out.Failure)
	}
}

func TestCallWithRetry_TerminalFailure(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []domain.Outcome{failure(domain.FailureUnauthorized)}}

	out, attempts := CallWithRetry(context.Background(), exec, provider.Operation{}, fastPolicy(3), nil)

	if attempts != 1 || exec.calls != 1 {
		t.Errorf("unauthorized should not be retried, attempts = %d", attempts)
	}
	if out.Failure.Kind != domain.FailureUnauthorized {
		t.Errorf("kind = %s", out.Failure.Kind)
	}
}

func TestCallWithRetry_CanceledDuringWait(t *testing.T) {
	exec := &scriptedExecutor{outcomes: []domain.Outcome{failure(domain.FailureServiceUnavailable)}}
	policy := NewRetryPolicy(RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, attempts := CallWithRetry(ctx, exec, provider.Operation{}, policy, nil)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if out.Failure.Kind != domain.FailureNetwork || out.Failure.Retryable {
		t.Errorf("expected terminal network failure, got %v", out.Failure)
	}
}
