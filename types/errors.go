package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the driver knows what to retry
type ErrorKind string

const (
	// Pre-flight failures - abort the run before any mutating call
	KindValidation           ErrorKind = "validation"
	KindInventoryUnavailable ErrorKind = "inventory_unavailable"
	KindInvariantViolation   ErrorKind = "invariant_violation"

	// Transient failures - retried with backoff
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"

	// Terminal failures - recorded, never retried
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"

	KindUnknown ErrorKind = "unknown"
)

// IsTransient reports whether retrying could resolve the failure
func (k ErrorKind) IsTransient() bool {
	return k == KindRateLimited || k == KindTimeout
}

// ProviderError wraps a provider boundary failure with its kind
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error
func NewProviderError(kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

// KindOf extracts the error kind from err, defaulting to unknown.
// Context cancellation surfaces as a timeout so an interrupted in-flight
// call still reaches a terminal state in the report.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
