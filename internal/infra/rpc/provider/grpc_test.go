package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/vietddude/cogcall/internal/core/domain"
)

func TestClassifyGRPCError(t *testing.T) {
	tests := []struct {
		code      codes.Code
		kind      domain.FailureKind
		retryable bool
	}{
		{codes.ResourceExhausted, domain.FailureRateLimited, true},
		{codes.Unauthenticated, domain.FailureUnauthorized, false},
		{codes.PermissionDenied, domain.FailureUnauthorized, false},
		{codes.InvalidArgument, domain.FailureInvalidInput, false},
		{codes.OutOfRange, domain.FailureInvalidInput, false},
		{codes.FailedPrecondition, domain.FailureInvalidInput, false},
		{codes.Unavailable, domain.FailureServiceUnavailable, true},
		{codes.Internal, domain.FailureServiceUnavailable, true},
		{codes.Aborted, domain.FailureServiceUnavailable, true},
		{codes.DeadlineExceeded, domain.FailureNetwork, true},
		{codes.Canceled, domain.FailureNetwork, false},
		{codes.NotFound, domain.FailureUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			f := ClassifyGRPCError(context.Background(), status.Error(tt.code, "boom"))
			if f.Kind != tt.kind || f.Retryable != tt.retryable {
				t.Errorf("got %s retryable=%v, want %s retryable=%v", f.Kind, f.Retryable, tt.kind, tt.retryable)
			}
		})
	}
}

func TestClassifyGRPCError_RetryInfo(t *testing.T) {
	st, err := status.New(codes.ResourceExhausted, "slow down").WithDetails(&errdetails.RetryInfo{
		RetryDelay: durationpb.New(4 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}

	f := ClassifyGRPCError(context.Background(), st.Err())
	if f.Kind != domain.FailureRateLimited || f.RetryAfter != 4*time.Second {
		t.Errorf("unexpected failure %+v", f)
	}
}

func TestClassifyGRPCError_CallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := ClassifyGRPCError(ctx, status.Error(codes.Unavailable, "gone"))
	if f.Kind != domain.FailureNetwork || f.Retryable {
		t.Errorf("caller cancellation wins over the status code, got %v", f)
	}
}

func TestGRPCProvider_Execute(t *testing.T) {
	p := NewGRPCProviderWithConn(GRPCConfig{Name: "language-grpc", APIKey: "secret", MaxPayloadSize: 10}, nil)

	var md metadata.MD
	op := Operation{
		ID:      "trace-9",
		Kind:    domain.KindSentiment,
		Payload: domain.TextPayload("hello"),
		GRPCHandler: func(ctx context.Context, conn grpc.ClientConnInterface) (any, error) {
			md, _ = metadata.FromOutgoingContext(ctx)
			return "positive", nil
		},
	}

	out := p.Execute(context.Background(), op)
	if !out.OK() || out.Result != "positive" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := md.Get("ocp-apim-subscription-key"); len(got) != 1 || got[0] != "secret" {
		t.Errorf("missing key metadata: %v", md)
	}
	if got := md.Get("x-clienttraceid"); len(got) != 1 || got[0] != "trace-9" {
		t.Errorf("missing trace metadata: %v", md)
	}

	op.Payload = domain.TextPayload("hello world!")
	out = p.Execute(context.Background(), op)
	if out.OK() || !errors.Is(out.Failure, ErrPayloadTooLarge) {
		t.Errorf("expected size rejection, got %+v", out)
	}

	op.Payload = domain.TextPayload("hello")
	op.GRPCHandler = func(ctx context.Context, conn grpc.ClientConnInterface) (any, error) {
		return nil, status.Error(codes.Unauthenticated, "bad key")
	}
	out = p.Execute(context.Background(), op)
	if out.OK() || out.Failure.Kind != domain.FailureUnauthorized {
		t.Errorf("expected unauthorized, got %+v", out)
	}
	if p.IsAvailable() {
		t.Error("auth failure should block the provider")
	}
}

func TestGRPCProvider_MissingHandler(t *testing.T) {
	p := NewGRPCProviderWithConn(GRPCConfig{Name: "grpc"}, nil)
	out := p.Execute(context.Background(), Operation{Kind: domain.KindSentiment, Payload: domain.TextPayload("x")})
	if out.OK() || out.Failure.Kind != domain.FailureInvalidInput {
		t.Errorf("expected invalid input, got %+v", out)
	}
}

type gatewayServer struct {
	health *health.Server
	addr   string

	mu       sync.Mutex
	requests []GatewayRequest
	methods  []string
}

func (g *gatewayServer) last() (string, GatewayRequest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.methods[len(g.methods)-1], g.requests[len(g.requests)-1]
}

func startGatewayServer(t *testing.T, reply string) *gatewayServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	g := &gatewayServer{health: health.NewServer(), addr: lis.Addr().String()}
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		var req GatewayRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		method, _ := grpc.MethodFromServerStream(stream)

		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.methods = append(g.methods, method)
		g.mu.Unlock()

		if req.Path == "/throttled" {
			return status.Error(codes.ResourceExhausted, "slow down")
		}
		return stream.SendMsg(json.RawMessage(reply))
	}))
	healthpb.RegisterHealthServer(srv, g.health)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return g
}

func TestGRPCProvider_Ping(t *testing.T) {
	g := startGatewayServer(t, `{}`)

	p, err := NewGRPCProvider(GRPCConfig{Name: "gateway", Endpoint: g.addr, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ping := Operation{Kind: domain.KindPing, AllowEmpty: true}
	if out := p.Execute(context.Background(), ping); !out.OK() {
		t.Fatalf("ping failed: %v", out.Failure)
	}

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	out := p.Execute(context.Background(), ping)
	if out.OK() || out.Failure.Kind != domain.FailureServiceUnavailable {
		t.Errorf("expected service unavailable, got %+v", out)
	}
}

func TestGRPCProvider_Gateway(t *testing.T) {
	g := startGatewayServer(t, `{"label":"positive"}`)

	p, err := NewGRPCProvider(GRPCConfig{
		Name:          "gateway",
		Endpoint:      "http://" + g.addr,
		APIVersion:    "2023-04-01",
		Timeout:       2 * time.Second,
		GatewayMethod: "/cogcall.v1.Gateway/Invoke",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	type sentiment struct {
		Label string `json:"label"`
	}
	op := Operation{
		ID:      "trace-1",
		Kind:    domain.KindSentiment,
		Payload: domain.TextPayload("great"),
		Request: Request{Path: "/language/:analyze-text", Body: map[string]string{"text": "great"}},
		Decode:  DecodeJSON[sentiment](),
	}

	out := p.Execute(context.Background(), op)
	if !out.OK() {
		t.Fatalf("gateway call failed: %v", out.Failure)
	}
	if got, ok := out.Result.(sentiment); !ok || got.Label != "positive" {
		t.Errorf("unexpected result %#v", out.Result)
	}
	if string(out.Raw) != `{"label":"positive"}` {
		t.Errorf("raw = %s", out.Raw)
	}

	method, req := g.last()
	if method != "/cogcall.v1.Gateway/Invoke" {
		t.Errorf("method = %s", method)
	}
	if req.Kind != string(domain.KindSentiment) || req.Method != "POST" || req.Path != "/language/:analyze-text" {
		t.Errorf("unexpected envelope %+v", req)
	}
	if req.Query.Get("api-version") != "2023-04-01" || req.ID != "trace-1" {
		t.Errorf("unexpected envelope %+v", req)
	}

	op.Request.Path = "/throttled"
	out = p.Execute(context.Background(), op)
	if out.OK() || out.Failure.Kind != domain.FailureRateLimited {
		t.Errorf("expected rate limited, got %+v", out)
	}
	if p.Monitor.CheckProviderStatus() != StatusThrottled {
		t.Error("throttle should be recorded on the monitor")
	}
}

func TestGRPCProvider_GatewayBinaryPayload(t *testing.T) {
	g := startGatewayServer(t, `{}`)

	p, err := NewGRPCProvider(GRPCConfig{Name: "gateway", Endpoint: g.addr, GatewayMethod: "/cogcall.v1.Gateway/Invoke"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	op := Operation{
		Kind:    domain.KindImageAnalysis,
		Payload: domain.BinaryPayload([]byte{0xff, 0xd8, 0x01}, "image/jpeg"),
		Request: Request{Path: "/computervision/imageanalysis:analyze"},
	}
	if out := p.Execute(context.Background(), op); !out.OK() {
		t.Fatalf("gateway call failed: %v", out.Failure)
	}

	_, req := g.last()
	if !bytes.Equal(req.Data, []byte{0xff, 0xd8, 0x01}) || req.ContentType != "image/jpeg" {
		t.Errorf("binary payload not forwarded: %+v", req)
	}
}
