package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReconcileMetrics records reconciliation outcomes via OTEL
type ReconcileMetrics struct {
	meter metric.Meter

	runsTotal       metric.Int64Counter
	opsAppliedTotal metric.Int64Counter
	opsFailedTotal  metric.Int64Counter
	opRetriesTotal  metric.Int64Counter
	runDuration     metric.Float64Histogram
	inScopeGauge    metric.Int64ObservableGauge

	inScope atomic.Int64
}

// NewReconcileMetrics creates and registers reconcile metrics
func NewReconcileMetrics() (*ReconcileMetrics, error) {
	m := &ReconcileMetrics{meter: otel.Meter("suoja")}

	var err error

	m.runsTotal, err = m.meter.Int64Counter(
		"suoja_runs_total",
		metric.WithDescription("Total reconciliation runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total counter: %w", err)
	}

	m.opsAppliedTotal, err = m.meter.Int64Counter(
		"suoja_ops_applied_total",
		metric.WithDescription("Total operations applied"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ops_applied counter: %w", err)
	}

	m.opsFailedTotal, err = m.meter.Int64Counter(
		"suoja_ops_failed_total",
		metric.WithDescription("Total operations failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ops_failed counter: %w", err)
	}

	m.opRetriesTotal, err = m.meter.Int64Counter(
		"suoja_op_retries_total",
		metric.WithDescription("Total operation retry attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create op_retries counter: %w", err)
	}

	m.runDuration, err = m.meter.Float64Histogram(
		"suoja_run_duration_seconds",
		metric.WithDescription("Reconciliation run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run_duration histogram: %w", err)
	}

	m.inScopeGauge, err = m.meter.Int64ObservableGauge(
		"suoja_in_scope_resources",
		metric.WithDescription("Resources in scope at last evaluation"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.inScope.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create in_scope gauge: %w", err)
	}

	return m, nil
}

// RecordRun records one completed run
func (m *ReconcileMetrics) RecordRun(ctx context.Context, clusterID string, durationSec float64, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("cluster_id", clusterID),
		attribute.Bool("failed", failed),
	)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, durationSec,
		metric.WithAttributes(attribute.String("cluster_id", clusterID)))
}

// RecordApplied records a successfully applied operation
func (m *ReconcileMetrics) RecordApplied(ctx context.Context, kind string) {
	m.opsAppliedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", kind)))
}

// RecordFailed records a terminally failed operation
func (m *ReconcileMetrics) RecordFailed(ctx context.Context, kind, errorKind string) {
	m.opsFailedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", kind),
		attribute.String("error_kind", errorKind),
	))
}

// RecordRetry records one retry attempt
func (m *ReconcileMetrics) RecordRetry(ctx context.Context, kind string) {
	m.opRetriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", kind)))
}

// SetInScope updates the in-scope resource gauge
func (m *ReconcileMetrics) SetInScope(count int) {
	m.inScope.Store(int64(count))
}
