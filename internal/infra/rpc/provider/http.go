package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

const (
	// DefaultAuthHeader is the Cognitive Services key header.
	DefaultAuthHeader = "Ocp-Apim-Subscription-Key"
	// RegionHeader carries the resource region for multi-service and translator keys.
	RegionHeader = "Ocp-Apim-Subscription-Region"
	// TraceHeader correlates a request with service-side logs.
	TraceHeader = "X-ClientTraceId"

	DefaultTimeout         = 30 * time.Second
	DefaultMaxPayloadSize  = 5120
	DefaultMaxResponseSize = 10 << 20
)

var (
	// ErrEmptyPayload is the cause of a local rejection of an empty input.
	ErrEmptyPayload = errors.New("payload is empty")
	// ErrPayloadTooLarge is the cause of a local rejection of an oversized input.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	// AuthHeader defaults to Ocp-Apim-Subscription-Key. Azure OpenAI uses "api-key".
	AuthHeader string
	Region     string
	// APIVersion is sent as the api-version query parameter unless the
	// operation sets its own.
	APIVersion      string
	Timeout         time.Duration
	MaxPayloadSize  int
	MaxResponseSize int64
}

// HTTPProvider executes operations against an Azure REST endpoint.
type HTTPProvider struct {
	*BaseProvider

	cfg        HTTPConfig
	httpClient *http.Client
}

// NewHTTPProvider creates a new HTTP-based provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = DefaultAuthHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	return &HTTPProvider{
		BaseProvider: NewBaseProvider(cfg.Name),
		cfg:          cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Endpoint returns the configured base URL.
func (p *HTTPProvider) Endpoint() string {
	return p.cfg.Endpoint
}

// Execute performs a single attempt of op.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation) domain.Outcome {
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

	start := time.Now()

	req, err := p.newRequest(callCtx, op)
	if err != nil {
		return domain.Failed(domain.WrapFailure(domain.FailureInvalidInput, err, "build request"), 0)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.Fail(ClassifyTransportError(ctx, err), time.Since(start))
	}
	defer resp.Body.Close()

	if op.Stream != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return p.consumeStream(ctx, op, resp, start)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxResponseSize))
	latency := time.Since(start)
	if err != nil {
		return p.Fail(ClassifyTransportError(ctx, err), latency)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.Fail(ClassifyStatus(resp.StatusCode, resp.Header, body, p.Monitor.DetectThrottlePattern), latency)
	}

	result, err := op.DecodeResponse(Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body})
	if err != nil {
		f := domain.WrapFailure(domain.FailureUnknown, err, "decode %s response", op.Kind)
		f.StatusCode = resp.StatusCode
		return p.Fail(f, latency)
	}

	p.RecordSuccess(latency)

	out := domain.Succeeded(result, latency)
	out.Raw = body
	out.StatusCode = resp.StatusCode
	return out
}

// consumeStream hands the live body to op.Stream. Once the consumer has
// seen data a retry would replay it, so failures here are not retryable.
func (p *HTTPProvider) consumeStream(ctx context.Context, op Operation, resp *http.Response, start time.Time) domain.Outcome {
	result, err := op.Stream(io.LimitReader(resp.Body, p.cfg.MaxResponseSize))
	latency := time.Since(start)
	if err != nil {
		f := streamFailure(ctx, op, err)
		f.StatusCode = resp.StatusCode
		return p.Fail(f, latency)
	}

	p.RecordSuccess(latency)

	out := domain.Succeeded(result, latency)
	out.StatusCode = resp.StatusCode
	return out
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) newRequest(ctx context.Context, op Operation) (*http.Request, error) {
	method := op.Request.Method
	if method == "" {
		method = http.MethodPost
	}

	target := p.cfg.Endpoint
	if op.Request.Path != "" {
		target = strings.TrimRight(target, "/") + "/" + strings.TrimLeft(op.Request.Path, "/")
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, vs := range op.Request.Query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if p.cfg.APIVersion != "" && !q.Has("api-version") {
		q.Set("api-version", p.cfg.APIVersion)
	}
	u.RawQuery = q.Encode()

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case op.Request.Body != nil:
		data, err := json.Marshal(op.Request.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case op.Payload.IsBinary():
		body = bytes.NewReader(op.Payload.Data)
		contentType = op.Payload.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set(p.cfg.AuthHeader, p.cfg.APIKey)
	}
	if p.cfg.Region != "" {
		req.Header.Set(RegionHeader, p.cfg.Region)
	}
	if op.ID != "" {
		req.Header.Set(TraceHeader, op.ID)
	}
	for k, v := range op.Request.Header {
		req.Header.Set(k, v)
	}
	for k, v := range op.Override.Header {
		req.Header.Set(k, v)
	}

	return req, nil
}
