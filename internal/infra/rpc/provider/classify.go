package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

// maxErrorBody bounds how much of an error body ends up in a failure message.
const maxErrorBody = 512

// ClassifyStatus maps a non-2xx HTTP reply to a failure.
func ClassifyStatus(statusCode int, header http.Header, body []byte, throttled func(string) bool) *domain.Failure {
	msg := errorMessage(body)

	var f *domain.Failure
	switch {
	case statusCode == http.StatusTooManyRequests:
		f = domain.NewFailure(domain.FailureRateLimited, msg)
		f.RetryAfter = ParseRetryAfter(header, time.Now())
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		f = domain.NewFailure(domain.FailureUnauthorized, msg)
	case throttled != nil && throttled(msg):
		f = domain.NewFailure(domain.FailureRateLimited, msg)
		f.RetryAfter = ParseRetryAfter(header, time.Now())
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusRequestEntityTooLarge,
		statusCode == http.StatusUnsupportedMediaType,
		statusCode == http.StatusUnprocessableEntity:
		f = domain.NewFailure(domain.FailureInvalidInput, msg)
	case statusCode == http.StatusRequestTimeout:
		f = domain.NewFailure(domain.FailureNetwork, msg)
	case statusCode >= 500:
		f = domain.NewFailure(domain.FailureServiceUnavailable, msg)
	default:
		f = domain.NewFailure(domain.FailureUnknown, msg)
	}

	f.StatusCode = statusCode
	return f
}

// ClassifyTransportError maps an error from the HTTP round trip. parent is the
// caller context: its cancellation is terminal, while a per-call timeout is a
// retryable network failure.
func ClassifyTransportError(parent context.Context, err error) *domain.Failure {
	if parent.Err() != nil {
		return domain.CanceledFailure(parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapFailure(domain.FailureNetwork, err, "request timed out")
	}
	return domain.WrapFailure(domain.FailureNetwork, err, "transport error")
}

// ParseRetryAfter reads the wait suggested by the service. It understands
// retry-after-ms, x-ms-retry-after-ms and Retry-After (seconds or HTTP date).
func ParseRetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}

	for _, key := range []string{"retry-after-ms", "x-ms-retry-after-ms"} {
		if v := strings.TrimSpace(header.Get(key)); v != "" {
			if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
				return time.Duration(ms * float64(time.Millisecond))
			}
		}
	}

	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage extracts the Azure error message from a reply body, falling
// back to the trimmed body itself.
func errorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Code       string `json:"code"`
			Message    string `json:"message"`
			InnerError *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"innererror"`
		} `json:"error"`
	}
	if err := decodeInto(body, &envelope); err == nil && envelope.Error != nil {
		e := envelope.Error
		msg := e.Message
		if e.InnerError != nil && e.InnerError.Message != "" {
			msg = fmt.Sprintf("%s (%s)", msg, e.InnerError.Message)
		}
		if e.Code != "" {
			return fmt.Sprintf("%s: %s", e.Code, msg)
		}
		return msg
	}

	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
