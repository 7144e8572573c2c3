package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindIsTransient(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		transient bool
	}{
		{KindRateLimited, true},
		{KindTimeout, true},
		{KindPermissionDenied, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindValidation, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		if got := tt.kind.IsTransient(); got != tt.transient {
			t.Errorf("%s: IsTransient() = %v, want %v", tt.kind, got, tt.transient)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKind("")},
		{"provider error", NewProviderError(KindRateLimited, errors.New("429")), KindRateLimited},
		{"wrapped provider error", fmt.Errorf("enroll: %w", NewProviderError(KindNotFound, nil)), KindNotFound},
		{"context canceled", context.Canceled, KindTimeout},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("throttled by provider")
	err := NewProviderError(KindRateLimited, inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find wrapped error")
	}
	if err.Error() != "rate_limited: throttled by provider" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestReconcileOperationValidate(t *testing.T) {
	valid := ReconcileOperation{Kind: OpEnroll, ResourceID: "cdn-1"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid operation rejected: %v", err)
	}

	missing := ReconcileOperation{Kind: OpEnroll}
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing resource ID")
	}

	bogus := ReconcileOperation{Kind: OpKind("destroy"), ResourceID: "cdn-1"}
	if err := bogus.Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
}
