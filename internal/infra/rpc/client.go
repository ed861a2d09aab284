package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/budget"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
	"github.com/vietddude/cogcall/internal/infra/rpc/routing"
	"github.com/vietddude/cogcall/internal/metrics"
)

// ResponseCache stores raw bodies of successful cacheable operations.
// Get returns domain.ErrCacheMiss when the key is absent.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CallRecorder receives one record per logical operation. Record must not block.
type CallRecorder interface {
	Record(rec domain.CallRecord)
}

// ClientConfig wires optional collaborators into a Client.
type ClientConfig struct {
	Retry routing.RetryConfig
	// Prices defaults to budget.DefaultPriceTable.
	Prices *budget.PriceTable
	// Budget refuses operations once today's estimated spend reaches its limit.
	Budget *budget.DailyBudget

	// Cache serves repeated cacheable operations without a remote call.
	// Cache hits are not recorded by the usage accountant, so with a cache
	// TotalRequests counts remote operations only.
	Cache    ResponseCache
	CacheTTL time.Duration

	Recorder CallRecorder
}

// Client is the high-level interface for making remote calls.
// This is what application layers should use.
type Client struct {
	executor   provider.Executor
	policy     *routing.RetryPolicy
	accountant *budget.UsageAccountant
	prices     budget.PriceTable

	daily    *budget.DailyBudget
	cache    ResponseCache
	cacheTTL time.Duration
	recorder CallRecorder
}

// NewClient creates a client over exec, typically a routing.Router.
func NewClient(exec provider.Executor, cfg ClientConfig) *Client {
	prices := budget.DefaultPriceTable()
	if cfg.Prices != nil {
		prices = *cfg.Prices
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{
		executor:   exec,
		policy:     routing.NewRetryPolicy(cfg.Retry),
		accountant: budget.NewUsageAccountant(),
		prices:     prices,
		daily:      cfg.Budget,
		cache:      cfg.Cache,
		cacheTTL:   ttl,
		recorder:   cfg.Recorder,
	}
}

// Execute runs op with retries and records it exactly once.
// It returns the decoded result or the final *domain.Failure.
func (c *Client) Execute(ctx context.Context, op Operation) (any, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	kind := string(op.Kind)

	var key string
	if c.cache != nil && op.Cacheable {
		key = CacheKey(op)
		if result, ok := c.lookup(ctx, key, op); ok {
			metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
			metrics.OperationsTotal.WithLabelValues(kind, "cached").Inc()
			return result, nil
		}
		metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
	}

	volume := int64(op.Payload.Size())
	if c.daily != nil && !c.daily.Allow(c.prices.CallCost(op.Kind, true, volume)) {
		f := domain.WrapFailure(domain.FailureRateLimited, budget.ErrBudgetExceeded, "%s refused locally", op.Kind)
		f.Retryable = false
		c.finish(op, domain.Failed(f, 0), 0, 0)
		return nil, f
	}

	outcome, attempts := routing.CallWithRetry(ctx, c.executor, op, c.policy, c.onRetry)

	if !outcome.OK() && rejectedLocally(outcome.Failure) {
		volume = 0
	}
	c.finish(op, outcome, attempts, volume)

	if !outcome.OK() {
		return nil, outcome.Failure
	}

	if key != "" && outcome.Raw != nil {
		if err := c.cache.Set(ctx, key, outcome.Raw, c.cacheTTL); err != nil {
			slog.Warn("Failed to cache response", "kind", op.Kind, "error", err)
		}
	}
	return outcome.Result, nil
}

// Ping sends an empty request to service. path is relative to the service
// endpoint; any response other than an auth or transport failure counts.
func (c *Client) Ping(ctx context.Context, service, path string) error {
	_, err := c.Execute(ctx, NewPingOperation(service, path))
	if err == nil {
		return nil
	}
	if f, ok := domain.AsFailure(err); ok && f.StatusCode != 0 &&
		(f.Kind == domain.FailureInvalidInput || f.Kind == domain.FailureUnknown) {
		// The service answered; the ping path is just not a valid request.
		return nil
	}
	return err
}

// Snapshot returns the current usage statistics.
func (c *Client) Snapshot() domain.UsageStats {
	return c.accountant.Snapshot()
}

// EstimatedCost prices recorded volume with the client's price table.
func (c *Client) EstimatedCost() float64 {
	return c.accountant.EstimatedCostFor(c.prices)
}

// Accountant exposes the usage accountant.
func (c *Client) Accountant() *budget.UsageAccountant {
	return c.accountant
}

// Prices returns the client's price table.
func (c *Client) Prices() budget.PriceTable {
	return c.prices
}

// BudgetStatus returns the daily budget status, or false when no budget is set.
func (c *Client) BudgetStatus() (budget.BudgetStatus, bool) {
	if c.daily == nil {
		return budget.BudgetStatus{}, false
	}
	return c.daily.Status(), true
}

// RetryPolicy returns the effective retry policy.
func (c *Client) RetryPolicy() *routing.RetryPolicy {
	return c.policy
}

func (c *Client) lookup(ctx context.Context, key string, op Operation) (any, bool) {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			slog.Warn("Response cache lookup failed", "kind", op.Kind, "error", err)
		}
		return nil, false
	}

	result, err := op.DecodeResponse(provider.Response{StatusCode: 200, Body: raw})
	if err != nil {
		slog.Debug("Discarding undecodable cache entry", "kind", op.Kind, "error", err)
		return nil, false
	}
	return result, true
}

func (c *Client) finish(op Operation, outcome domain.Outcome, attempts int, volume int64) {
	c.accountant.Record(op.Kind, outcome, volume)

	cost := c.prices.CallCost(op.Kind, outcome.OK(), volume)
	if c.daily != nil {
		c.daily.Charge(cost)
		metrics.BudgetSpent.Set(c.daily.Status().Spent)
	}

	kind := string(op.Kind)
	metrics.OperationLatency.WithLabelValues(kind).Observe(outcome.Elapsed.Seconds())
	metrics.VolumeTotal.WithLabelValues(kind).Add(float64(volume))
	metrics.EstimatedCostTotal.WithLabelValues(kind).Add(cost)

	rec := domain.CallRecord{
		ID:         op.ID,
		Kind:       op.Kind,
		Success:    outcome.OK(),
		StatusCode: outcome.StatusCode,
		Attempts:   attempts,
		Volume:     volume,
		ElapsedMs:  outcome.Elapsed.Milliseconds(),
		Cost:       cost,
		CreatedAt:  time.Now().UTC(),
	}

	if outcome.OK() {
		metrics.OperationsTotal.WithLabelValues(kind, "success").Inc()
		slog.Debug("Operation succeeded",
			"kind", op.Kind,
			"id", op.ID,
			"attempts", attempts,
			"elapsed", outcome.Elapsed,
		)
	} else {
		f := outcome.Failure
		metrics.OperationsTotal.WithLabelValues(kind, "failure").Inc()
		metrics.FailuresTotal.WithLabelValues(kind, string(f.Kind)).Inc()
		rec.FailureKind = f.Kind
		rec.Error = f.Error()
	}

	if c.recorder != nil {
		c.recorder.Record(rec)
	}
}

func (c *Client) onRetry(op Operation, f *domain.Failure, attempt int, delay time.Duration) {
	metrics.RetriesTotal.WithLabelValues(string(op.Kind), string(f.Kind)).Inc()
}

func rejectedLocally(f *domain.Failure) bool {
	return errors.Is(f, provider.ErrEmptyPayload) ||
		errors.Is(f, provider.ErrPayloadTooLarge) ||
		errors.Is(f, routing.ErrNoProvider)
}

// Do executes op and returns its result as T. Unless op already has a
// decoder, the response is decoded as JSON into T and validated when T
// implements provider.Validator.
func Do[T any](ctx context.Context, c *Client, op Operation) (T, error) {
	var zero T
	if op.Decode == nil {
		op.Decode = provider.DecodeJSON[T]()
	}

	result, err := c.Execute(ctx, op)
	if err != nil {
		return zero, err
	}

	v, ok := result.(T)
	if !ok {
		return zero, domain.NewFailure(domain.FailureUnknown, fmt.Sprintf("unexpected result type %T for %s", result, op.Kind))
	}
	return v, nil
}
