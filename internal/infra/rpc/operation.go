package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/provider"
)

// NewOperation creates a JSON POST operation measured by text.
func NewOperation(kind domain.OperationKind, text, path string, body any) Operation {
	return provider.Operation{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: domain.TextPayload(text),
		Request: provider.Request{
			Method: http.MethodPost,
			Path:   path,
			Body:   body,
		},
	}
}

// NewBinaryOperation creates an operation that posts raw bytes.
func NewBinaryOperation(kind domain.OperationKind, data []byte, contentType, path string, query url.Values) Operation {
	return provider.Operation{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: domain.BinaryPayload(data, contentType),
		Request: provider.Request{
			Method: http.MethodPost,
			Path:   path,
			Query:  query,
		},
	}
}

// NewGetOperation creates an empty-payload GET operation.
func NewGetOperation(kind domain.OperationKind, path string, query url.Values) Operation {
	return provider.Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		AllowEmpty: true,
		Request: provider.Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  query,
		},
	}
}

// NewPingOperation creates a health check for service.
func NewPingOperation(service, path string) Operation {
	op := NewGetOperation(domain.KindPing, path, nil)
	op.Target = service
	return op
}

// NewGRPCOperation creates an Operation executed by a generated gRPC client.
func NewGRPCOperation(
	kind domain.OperationKind,
	payload domain.Payload,
	handler func(ctx context.Context, conn grpc.ClientConnInterface) (any, error),
) Operation {
	return provider.Operation{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		GRPCHandler: handler,
	}
}

// CacheKey identifies the response of op: a sha256 over kind, target, method,
// path, sorted query and body.
func CacheKey(op Operation) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(string(op.Kind))
	write(op.Service())
	write(op.Request.Method)
	write(op.Request.Path)

	keys := make([]string, 0, len(op.Request.Query))
	for k := range op.Request.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range op.Request.Query[k] {
			write(k + "=" + v)
		}
	}

	switch {
	case op.Request.Body != nil:
		data, err := json.Marshal(op.Request.Body)
		if err != nil {
			// Unencodable bodies fail in the executor; key on the id so nothing is shared.
			write(op.ID)
		} else {
			h.Write(data)
		}
	case op.Payload.IsBinary():
		h.Write(op.Payload.Data)
	default:
		write(op.Payload.Text)
	}

	return "cogcall:resp:" + hex.EncodeToString(h.Sum(nil))
}
