// Package routing dispatches operations to providers and decides whether and
// when a failed operation is attempted again.
//
// This package contains:
//   - Router: per-service provider selection
//   - RetryPolicy: retry decision and exponential backoff with jitter
//   - RetryState: per-call attempt counter
//   - CallWithRetry: the attempt loop around a provider.Executor
package routing

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
	// Jitter is the relative spread applied to each delay; 0.2 means ±20%.
	Jitter float64 `yaml:"jitter"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	BaseDelay:       1 * time.Second,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          0.2,
}

// RetryState is the mutable retry bookkeeping of one Execute call.
type RetryState struct {
	// Attempt counts the retries scheduled so far.
	Attempt    int
	TotalDelay time.Duration
}

// RetryPolicy decides whether to retry a failure and how long to wait.
// It holds no per-call state and is safe for concurrent use.
type RetryPolicy struct {
	cfg   RetryConfig
	float func() float64 // random source in [0, 1)
}

// NewRetryPolicy creates a policy, filling unset fields from DefaultRetryConfig.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.BackoffMultiple < 1 {
		cfg.BackoffMultiple = DefaultRetryConfig.BackoffMultiple
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	// Below the cap consecutive delays stay non-decreasing only while
	// multiple >= (1+jitter)/(1-jitter).
	if limit := (cfg.BackoffMultiple - 1) / (cfg.BackoffMultiple + 1); cfg.Jitter > limit {
		slog.Warn("Retry jitter too wide for backoff multiple, narrowing",
			"jitter", cfg.Jitter, "backoff_multiple", cfg.BackoffMultiple, "max_jitter", limit)
		cfg.Jitter = limit
	}
	return &RetryPolicy{cfg: cfg, float: rand.Float64}
}

// Config returns the effective configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.cfg
}

// MaxAttempts is the upper bound of attempts for one operation.
func (p *RetryPolicy) MaxAttempts() int {
	return p.cfg.MaxRetries + 1
}

// ShouldRetry reports whether f may be retried given the retries already made.
func (p *RetryPolicy) ShouldRetry(f *domain.Failure, state *RetryState) bool {
	if f == nil || !f.Retryable {
		return false
	}
	return state.Attempt < p.cfg.MaxRetries
}

// NextDelay computes the wait before the next attempt and advances state.
// The delay is BaseDelay * BackoffMultiple^attempt, jittered, capped at
// MaxDelay, and never shorter than the provider's suggested wait.
func (p *RetryPolicy) NextDelay(state *RetryState, f *domain.Failure) time.Duration {
	delay := p.backoff(state.Attempt)
	if f != nil && f.RetryAfter > delay {
		delay = f.RetryAfter
	}

	state.Attempt++
	state.TotalDelay += delay
	return delay
}

// backoff spreads delays by ±Jitter below the cap. Once the nominal delay
// reaches MaxDelay it is drawn from [MaxDelay*(1-Jitter), MaxDelay] so
// capped callers do not line up again.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	maxDelay := float64(p.cfg.MaxDelay)
	delay := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.BackoffMultiple, float64(attempt))
	j := p.cfg.Jitter

	switch {
	case delay >= maxDelay || math.IsInf(delay, 0) || math.IsNaN(delay):
		delay = maxDelay
		if j > 0 {
			delay *= 1 - j*p.float()
		}
	case j > 0:
		delay = math.Min(delay*(1+j*(2*p.float()-1)), maxDelay)
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryHook observes each scheduled retry.
type RetryHook func(op provider.Operation, f *domain.Failure, attempt int, delay time.Duration)

// CallWithRetry executes op until it succeeds, fails terminally, exhausts the
// policy or ctx is canceled. It returns the final outcome and the number of
// attempts made. A returned failure carries the attempt count.
func CallWithRetry(
	ctx context.Context,
	exec provider.Executor,
	op provider.Operation,
	policy *RetryPolicy,
	onRetry RetryHook,
) (domain.Outcome, int) {
	var (
		state   RetryState
		elapsed time.Duration
	)

	for {
		outcome := exec.Execute(ctx, op)
		elapsed += outcome.Elapsed
		attempts := state.Attempt + 1

		if outcome.OK() {
			outcome.Elapsed = elapsed
			return outcome, attempts
		}

		f := outcome.Failure
		if ctx.Err() != nil && f.Retryable {
			f = domain.CanceledFailure(ctx.Err())
		}

		if !policy.ShouldRetry(f, &state) {
			f.Attempts = attempts
			return domain.Failed(f, elapsed), attempts
		}

		delay := policy.NextDelay(&state, f)
		slog.Warn("Retrying operation",
			"kind", op.Kind,
			"id", op.ID,
			"failure", f.Kind,
			"attempt", attempts,
			"delay", delay,
		)
		if onRetry != nil {
			onRetry(op, f, attempts, delay)
		}

		if err := Wait(ctx, delay); err != nil {
			canceled := domain.CanceledFailure(err)
			canceled.Attempts = attempts
			return domain.Failed(canceled, elapsed), attempts
		}
	}
}
