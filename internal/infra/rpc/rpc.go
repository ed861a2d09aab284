// Package rpc provides a resilient client for Azure AI service endpoints.
//
// This package offers robust connectivity with:
//   - REST and gRPC executors with failure classification
//   - Retries with exponential backoff, jitter and Retry-After hints
//   - Usage accounting and estimated cost
//   - Optional daily spend cap, response cache and call record sink
//
// # Quick Start
//
//	import "github.com/vietddude/cogcall/internal/infra/rpc"
//
//	router := rpc.NewRouter()
//	router.AddProvider("language", rpc.NewHTTPProvider(rpc.HTTPConfig{
//	    Name:       "language",
//	    Endpoint:   endpoint,
//	    APIKey:     key,
//	    APIVersion: "2023-04-01",
//	}))
//
//	client := rpc.NewClient(router, rpc.ClientConfig{Retry: rpc.DefaultRetryConfig})
//
//	op := rpc.NewOperation(domain.KindSentiment, text, "/language/:analyze-text", body)
//	result, err := rpc.Do[SentimentResult](ctx, client, op)
//
//	stats := client.Snapshot()
//
// # Package Structure
//
//   - provider/ - Executors (HTTPProvider, GRPCProvider), classification, monitoring
//   - routing/  - Per-service routing, retry policy and attempt loop
//   - budget/   - Usage accountant, price table, daily budget
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"context"
	"time"

	"github.com/vietddude/cogcall/internal/infra/rpc/budget"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
	"github.com/vietddude/cogcall/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Provider is the core interface for service endpoints.
type Provider = provider.Provider

// Executor performs a single attempt of an operation.
type Executor = provider.Executor

// HTTPProvider executes operations against an Azure REST endpoint.
type HTTPProvider = provider.HTTPProvider

// HTTPConfig configures an HTTPProvider.
type HTTPConfig = provider.HTTPConfig

// GRPCProvider executes operations through generated gRPC clients.
type GRPCProvider = provider.GRPCProvider

// GRPCConfig configures a GRPCProvider.
type GRPCConfig = provider.GRPCConfig

// Operation represents a remote call to execute (transport-agnostic).
type Operation = provider.Operation

// Request is the wire shape of an HTTP operation.
type Request = provider.Request

// Override holds per-call configuration.
type Override = provider.Override

// Response is what a decoder sees of a successful reply.
type Response = provider.Response

// Decoder converts a successful response into a result.
type Decoder = provider.Decoder

// Validator is implemented by result schemas that check their own shape.
type Validator = provider.Validator

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// ErrMalformedStream is wrapped by Stream consumers that cannot parse the body.
var ErrMalformedStream = provider.ErrMalformedStream

// NewHTTPProvider creates a new HTTP-based provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	return provider.NewHTTPProvider(cfg)
}

// NewGRPCProvider creates a new gRPC provider.
func NewGRPCProvider(cfg GRPCConfig) (*GRPCProvider, error) {
	return provider.NewGRPCProvider(cfg)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Router dispatches operations to providers by service.
type Router = routing.Router

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// RetryPolicy decides whether and when to retry.
type RetryPolicy = routing.RetryPolicy

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewRouter creates an empty router.
func NewRouter() *Router {
	return routing.NewRouter()
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	return routing.Wait(ctx, d)
}

// =============================================================================
// Re-exported types from budget package
// =============================================================================

// UsageAccountant keeps running usage statistics.
type UsageAccountant = budget.UsageAccountant

// PriceTable maps operation kinds to prices per unit.
type PriceTable = budget.PriceTable

// DailyBudget caps estimated daily spend.
type DailyBudget = budget.DailyBudget

// ErrBudgetExceeded is wrapped by failures refused by the daily budget.
var ErrBudgetExceeded = budget.ErrBudgetExceeded

// NewDailyBudget creates a daily budget with the given limit.
func NewDailyBudget(limit float64) *DailyBudget {
	return budget.NewDailyBudget(limit)
}
