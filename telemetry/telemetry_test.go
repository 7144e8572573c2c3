package telemetry

import (
	"context"
	"testing"

	"github.com/yairfalse/suoja/types"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-service")
	if logger == nil {
		t.Fatal("expected logger")
	}

	// Must not panic with or without context
	logger.Info().Msg("plain")
	logger.WithContext(context.Background()).Info().Msg("with context")
	logger.LogRunStart(context.Background(), "run-1", "vhs")
	logger.LogOperationApplied(context.Background(),
		types.ReconcileOperation{Kind: types.OpEnroll, ResourceID: "cdn-1"}, 1)
}

func TestNewReconcileMetrics(t *testing.T) {
	m, err := NewReconcileMetrics()
	if err != nil {
		t.Fatalf("metrics init: %v", err)
	}

	ctx := context.Background()
	m.RecordRun(ctx, "vhs", 1.5, false)
	m.RecordApplied(ctx, "enroll")
	m.RecordFailed(ctx, "unenroll", "permission_denied")
	m.RecordRetry(ctx, "enroll")
	m.SetInScope(7)

	if m.inScope.Load() != 7 {
		t.Errorf("in scope = %d, want 7", m.inScope.Load())
	}
}

func TestProviderLifecycle(t *testing.T) {
	ctx := context.Background()

	// No OTLP endpoint: tracing stays local, metrics use prometheus
	p, err := NewProvider(ctx, Config{ServiceName: "suoja-test", ServiceVersion: "0.0.0"})
	if err != nil {
		t.Fatalf("provider init: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
