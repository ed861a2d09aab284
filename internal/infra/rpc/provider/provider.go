// Package provider implements request executors for Azure AI endpoints.
//
// This package contains:
//   - Operation: transport-agnostic description of one remote call
//   - Executor: performs a single attempt and classifies the result
//   - HTTPProvider: REST executor (key header, api-version, JSON or binary body)
//   - GRPCProvider: gRPC executor mapping status codes to failure kinds
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/grpc"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// Operation represents one remote call to execute.
// Build it once and do not mutate it afterwards; executors only read it.
type Operation struct {
	// ID is a unique identifier, also sent as the client trace id.
	ID string

	// Kind identifies the operation (e.g., "language.sentiment").
	Kind domain.OperationKind

	// Target names the service that executes the operation.
	// NOTE: When empty it is derived from Kind (see domain.OperationKind.Service).
	Target string

	// Payload is the measured input. Its size is checked against the payload
	// limit and reported as usage volume.
	Payload domain.Payload

	// Request describes the HTTP shape of the call.
	Request Request

	// Override holds per-call settings that win over the executor config.
	Override Override

	// AllowEmpty lets checks such as ping go out with an empty payload.
	AllowEmpty bool

	// Cacheable marks successful responses as safe to serve from cache.
	Cacheable bool

	// Decode turns a 2xx response into the typed result.
	// NOTE: When nil the raw body is returned as json.RawMessage.
	Decode Decoder

	// Stream consumes a successful body as it arrives and replaces Decode.
	// Streamed responses are not buffered, so they are never cached.
	Stream func(body io.Reader) (any, error)

	// GRPCHandler executes the call on a gRPC connection.
	// NOTE: Required for GRPCProvider, ignored by HTTPProvider.
	GRPCHandler func(ctx context.Context, conn grpc.ClientConnInterface) (any, error)
}

// Request is the wire shape of an HTTP operation.
type Request struct {
	// Method defaults to POST.
	Method string

	// Path is appended to the provider endpoint.
	Path string

	// Query is merged with the provider's api-version.
	Query url.Values

	// Body is JSON-encoded when set. Binary payloads are sent raw instead.
	Body any

	Header map[string]string
}

// Override holds per-call configuration.
type Override struct {
	Timeout        time.Duration
	MaxPayloadSize int
	Header         map[string]string
}

// Response is what a decoder sees of a successful reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decoder converts a successful response into a result.
type Decoder func(resp Response) (any, error)

// Service returns the routing target of the operation.
func (op Operation) Service() string {
	if op.Target != "" {
		return op.Target
	}
	return op.Kind.Service()
}

// DecodeResponse runs the operation's decoder, or returns the raw body.
func (op Operation) DecodeResponse(resp Response) (any, error) {
	if op.Decode == nil {
		return rawDecoder(resp)
	}
	return op.Decode(resp)
}

// Executor performs a single attempt of an operation.
// Execute never retries and never records usage.
type Executor interface {
	Execute(ctx context.Context, op Operation) domain.Outcome
}

// Provider is an Executor with identity and lifecycle.
type Provider interface {
	Executor

	// GetName returns provider identifier (e.g., "language", "translator")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// validatePayload rejects empty payloads and payloads over the effective
// limit before anything goes on the wire. limit <= 0 disables the size check.
func validatePayload(op Operation, limit int) *domain.Failure {
	if !op.AllowEmpty && op.Payload.Empty() {
		return domain.WrapFailure(domain.FailureInvalidInput, ErrEmptyPayload, "%s rejected locally", op.Kind)
	}

	if op.Override.MaxPayloadSize > 0 {
		limit = op.Override.MaxPayloadSize
	}
	if limit > 0 && op.Payload.Size() > limit {
		return domain.WrapFailure(
			domain.FailureInvalidInput,
			ErrPayloadTooLarge,
			"%s payload size %d over limit %d",
			op.Kind, op.Payload.Size(), limit,
		)
	}
	return nil
}

// ErrMalformedStream is wrapped by Stream consumers that cannot parse the body.
var ErrMalformedStream = errors.New("malformed stream")

func streamFailure(ctx context.Context, op Operation, err error) *domain.Failure {
	var f *domain.Failure
	if errors.Is(err, ErrMalformedStream) {
		f = domain.WrapFailure(domain.FailureUnknown, err, "decode %s stream", op.Kind)
	} else {
		f = ClassifyTransportError(ctx, err)
	}
	f.Retryable = false
	return f
}
