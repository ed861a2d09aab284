package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailureKind classifies why an attempt failed.
type FailureKind string

const (
	FailureRateLimited        FailureKind = "rate_limited"
	FailureUnauthorized       FailureKind = "unauthorized"
	FailureInvalidInput       FailureKind = "invalid_input"
	FailureNetwork            FailureKind = "network"
	FailureServiceUnavailable FailureKind = "service_unavailable"
	FailureUnknown            FailureKind = "unknown"
)

// AllFailureKinds lists every classification, in a stable order.
var AllFailureKinds = []FailureKind{
	FailureRateLimited,
	FailureUnauthorized,
	FailureInvalidInput,
	FailureNetwork,
	FailureServiceUnavailable,
	FailureUnknown,
}

// Retryable reports the default retryability of the kind.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureRateLimited, FailureNetwork, FailureServiceUnavailable:
		return true
	default:
		return false
	}
}

// Failure is the terminal or intermediate error of an operation attempt.
type Failure struct {
	Kind       FailureKind
	Message    string
	Retryable  bool
	StatusCode int
	// RetryAfter is the wait suggested by the provider, zero when absent.
	RetryAfter time.Duration
	// Attempts is set once the failure is returned to the caller.
	Attempts int
	Err      error
}

// NewFailure creates a failure with the default retryability of kind.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{
		Kind:      kind,
		Message:   message,
		Retryable: kind.Retryable(),
	}
}

// WrapFailure creates a failure with an underlying cause.
func WrapFailure(kind FailureKind, err error, format string, args ...any) *Failure {
	f := NewFailure(kind, fmt.Sprintf(format, args...))
	f.Err = err
	return f
}

// CanceledFailure reports a caller cancellation. It is never retried.
func CanceledFailure(err error) *Failure {
	f := WrapFailure(FailureNetwork, err, "operation canceled")
	f.Retryable = false
	return f
}

func (f *Failure) Error() string {
	var sb strings.Builder
	sb.WriteString(string(f.Kind))
	if f.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Message)
	}
	if f.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	if f.StatusCode != 0 {
		fmt.Fprintf(&sb, " (http %d)", f.StatusCode)
	}
	if f.Attempts > 0 {
		fmt.Fprintf(&sb, " after %d attempt(s)", f.Attempts)
	}
	return sb.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the failure kind of err, or FailureUnknown for foreign errors.
func KindOf(err error) FailureKind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	return FailureUnknown
}
