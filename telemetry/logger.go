// Package telemetry provides structured logging and OpenTelemetry
// instrumentation for suoja.
package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/suoja/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for reconciliation runs

func (l *Logger) LogRunStart(ctx context.Context, runID, clusterID string) {
	l.WithContext(ctx).Info().
		Str("run_id", runID).
		Str("cluster_id", clusterID).
		Msg("reconciliation run starting")
}

func (l *Logger) LogScopeEvaluated(ctx context.Context, runID string, evaluated, inScope int) {
	l.WithContext(ctx).Info().
		Str("run_id", runID).
		Int("resources_evaluated", evaluated).
		Int("resources_in_scope", inScope).
		Msg("scope evaluated")
}

func (l *Logger) LogPlanBuilt(ctx context.Context, runID string, enrolls, unenrolls, noops int) {
	l.WithContext(ctx).Info().
		Str("run_id", runID).
		Int("enrolls", enrolls).
		Int("unenrolls", unenrolls).
		Int("noops", noops).
		Msg("reconcile plan built")
}

func (l *Logger) LogOperationApplied(ctx context.Context, op types.ReconcileOperation, attempts int) {
	l.WithContext(ctx).Info().
		Str("resource_id", op.ResourceID).
		Str("kind", string(op.Kind)).
		Int("attempts", attempts).
		Msg("operation applied")
}

func (l *Logger) LogOperationFailed(ctx context.Context, op types.ReconcileOperation, kind types.ErrorKind, attempts int, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("resource_id", op.ResourceID).
		Str("kind", string(op.Kind)).
		Str("error_kind", string(kind)).
		Int("attempts", attempts).
		Msg("operation failed")
}

func (l *Logger) LogOperationRetry(ctx context.Context, op types.ReconcileOperation, kind types.ErrorKind, attempt int) {
	l.WithContext(ctx).Warn().
		Str("resource_id", op.ResourceID).
		Str("kind", string(op.Kind)).
		Str("error_kind", string(kind)).
		Int("attempt", attempt).
		Msg("transient failure, retrying")
}

func (l *Logger) LogRunComplete(ctx context.Context, runID string, applied, failed, skipped int, durationMs float64) {
	event := l.WithContext(ctx).Info()
	if failed > 0 {
		event = l.WithContext(ctx).Warn()
	}
	event.
		Str("run_id", runID).
		Int("applied", applied).
		Int("failed", failed).
		Int("skipped", skipped).
		Float64("duration_ms", durationMs).
		Msg("reconciliation run complete")
}
