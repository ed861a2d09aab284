package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// JSONCodec carries gateway calls as JSON. It is registered under the
// "json" content subtype so it can share a server with protobuf services.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// GatewayRequest is the envelope sent to a gateway method for operations
// without a generated client.
type GatewayRequest struct {
	ID          string            `json:"id,omitempty"`
	Kind        string            `json:"kind"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       url.Values        `json:"query,omitempty"`
	Header      map[string]string `json:"header,omitempty"`
	Body        any               `json:"body,omitempty"`
	Data        []byte            `json:"data,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// GRPCConfig configures a GRPCProvider.
type GRPCConfig struct {
	Name           string
	Endpoint       string
	APIKey         string
	APIVersion     string
	Timeout        time.Duration
	MaxPayloadSize int

	// GatewayMethod is the full method name ("/pkg.Service/Method") that
	// receives a GatewayRequest and answers with the service's JSON body.
	// Empty means only operations with a GRPCHandler and pings are served.
	GatewayMethod string

	// HealthService is the name passed to grpc.health.v1 checks on ping.
	HealthService string
}

// GRPCProvider executes operations over gRPC: through the operation's
// GRPCHandler when set, the grpc.health.v1 service for pings, and the
// configured gateway method otherwise.
type GRPCProvider struct {
	*BaseProvider

	cfg  GRPCConfig
	conn grpc.ClientConnInterface
}

// NewGRPCProvider creates a new gRPC provider.
func NewGRPCProvider(cfg GRPCConfig) (*GRPCProvider, error) {
	target := cfg.Endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return NewGRPCProviderWithConn(cfg, conn), nil
}

// NewGRPCProviderWithConn wraps an existing connection.
func NewGRPCProviderWithConn(cfg GRPCConfig, conn grpc.ClientConnInterface) *GRPCProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	return &GRPCProvider{
		BaseProvider: NewBaseProvider(cfg.Name),
		cfg:          cfg,
		conn:         conn,
	}
}

// Execute performs a single attempt of op through its GRPCHandler.
func (p *GRPCProvider) Execute(ctx context.Context, op Operation) domain.Outcome {
	if op.GRPCHandler == nil && op.Kind != domain.KindPing && p.cfg.GatewayMethod == "" {
		return domain.Failed(domain.NewFailure(domain.FailureInvalidInput, "operation has no grpc handler"), 0)
	}
	if f := validatePayload(op, p.cfg.MaxPayloadSize); f != nil {
		return domain.Failed(f, 0)
	}
	if err := ctx.Err(); err != nil {
		return domain.Failed(domain.CanceledFailure(err), 0)
	}

	timeout := p.cfg.Timeout
	if op.Override.Timeout > 0 {
		timeout = op.Override.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.cfg.APIKey != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, strings.ToLower(DefaultAuthHeader), p.cfg.APIKey)
	}
	if op.ID != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, strings.ToLower(TraceHeader), op.ID)
	}

	start := time.Now()
	result, raw, err := p.call(callCtx, op)
	latency := time.Since(start)

	if err != nil {
		return p.Fail(ClassifyGRPCError(ctx, err), latency)
	}
	if raw != nil && op.Stream != nil {
		result, err = op.Stream(bytes.NewReader(raw))
		if err != nil {
			return p.Fail(streamFailure(ctx, op, err), latency)
		}
		raw = nil
	} else if raw != nil {
		result, err = op.DecodeResponse(Response{StatusCode: http.StatusOK, Body: raw})
		if err != nil {
			return p.Fail(domain.WrapFailure(domain.FailureUnknown, err, "decode %s response", op.Kind), latency)
		}
	}

	p.RecordSuccess(latency)

	out := domain.Succeeded(result, latency)
	out.Raw = raw
	return out
}

// call returns either a handler result or a raw JSON body to decode.
func (p *GRPCProvider) call(ctx context.Context, op Operation) (any, []byte, error) {
	switch {
	case op.GRPCHandler != nil:
		result, err := op.GRPCHandler(ctx, p.conn)
		return result, nil, err
	case op.Kind == domain.KindPing:
		result, err := p.ping(ctx)
		return result, nil, err
	default:
		raw, err := p.invokeGateway(ctx, op)
		return nil, raw, err
	}
}

func (p *GRPCProvider) ping(ctx context.Context) (any, error) {
	resp, err := healthpb.NewHealthClient(p.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.cfg.HealthService})
	if err != nil {
		return nil, err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return nil, status.Errorf(codes.Unavailable, "health status %s", resp.GetStatus())
	}
	return resp.GetStatus().String(), nil
}

func (p *GRPCProvider) invokeGateway(ctx context.Context, op Operation) ([]byte, error) {
	method := op.Request.Method
	if method == "" {
		method = http.MethodPost
	}
	query := url.Values{}
	for k, vs := range op.Request.Query {
		query[k] = append([]string(nil), vs...)
	}
	if p.cfg.APIVersion != "" && !query.Has("api-version") {
		query.Set("api-version", p.cfg.APIVersion)
	}

	req := GatewayRequest{
		ID:     op.ID,
		Kind:   string(op.Kind),
		Method: method,
		Path:   op.Request.Path,
		Query:  query,
		Header: op.Request.Header,
		Body:   op.Request.Body,
	}
	if op.Payload.IsBinary() && op.Request.Body == nil {
		req.Data = op.Payload.Data
		req.ContentType = op.Payload.ContentType
	}

	var raw json.RawMessage
	if err := p.conn.Invoke(ctx, p.cfg.GatewayMethod, &req, &raw, grpc.CallContentSubtype(JSONCodec{}.Name())); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = json.RawMessage{}
	}
	return raw, nil
}

// Close cleans up resources.
func (p *GRPCProvider) Close() error {
	if c, ok := p.conn.(*grpc.ClientConn); ok {
		return c.Close()
	}
	return nil
}

// ClassifyGRPCError maps a gRPC status error to a failure. parent is the
// caller context, whose cancellation is terminal.
func ClassifyGRPCError(parent context.Context, err error) *domain.Failure {
	if parent.Err() != nil {
		return domain.CanceledFailure(parent.Err())
	}

	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.WrapFailure(domain.FailureNetwork, err, "request timed out")
		}
		return domain.WrapFailure(domain.FailureUnknown, err, "grpc call")
	}

	var f *domain.Failure
	switch st.Code() {
	case codes.ResourceExhausted:
		f = domain.NewFailure(domain.FailureRateLimited, st.Message())
		f.RetryAfter = retryDelay(st)
	case codes.Unauthenticated, codes.PermissionDenied:
		f = domain.NewFailure(domain.FailureUnauthorized, st.Message())
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		f = domain.NewFailure(domain.FailureInvalidInput, st.Message())
	case codes.Unavailable, codes.Internal, codes.Aborted:
		f = domain.NewFailure(domain.FailureServiceUnavailable, st.Message())
		f.RetryAfter = retryDelay(st)
	case codes.DeadlineExceeded:
		f = domain.NewFailure(domain.FailureNetwork, st.Message())
	case codes.Canceled:
		f = domain.NewFailure(domain.FailureNetwork, st.Message())
		f.Retryable = false
	default:
		f = domain.NewFailure(domain.FailureUnknown, st.Message())
	}
	f.Err = err
	return f
}

func retryDelay(st *status.Status) time.Duration {
	for _, d := range st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
			return ri.GetRetryDelay().AsDuration()
		}
	}
	return 0
}
