// Package executor applies reconcile plans against the enrollment
// boundary with retry, bounded concurrency, and partial-failure
// isolation.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/yairfalse/suoja/reconciler"
	"github.com/yairfalse/suoja/telemetry"
	"github.com/yairfalse/suoja/types"
	"github.com/yairfalse/suoja/wal"
)

// EnrollmentClient is the slice of the enrollment boundary the driver
// needs. providers.EnrollmentAPI satisfies it.
type EnrollmentClient interface {
	Enroll(ctx context.Context, resourceID string, action types.Action) error
	Unenroll(ctx context.Context, resourceID string) error
}

// Engine drives a plan to completion. Failure of one operation never
// blocks the rest; every started operation reaches a terminal state in
// the report.
type Engine struct {
	api     EnrollmentClient
	action  types.Action
	options Options
	logger  *telemetry.Logger
	metrics *telemetry.ReconcileMetrics
	wal     *wal.WAL
}

// NewEngine creates a driver for one enrollment backend
func NewEngine(api EnrollmentClient, action types.Action, options Options) *Engine {
	return &Engine{
		api:     api,
		action:  action,
		options: options.withDefaults(),
		logger:  telemetry.NewLogger("executor"),
	}
}

// WithWAL attaches an audit log
func (e *Engine) WithWAL(w *wal.WAL) *Engine {
	e.wal = w
	return e
}

// WithMetrics attaches reconcile metrics
func (e *Engine) WithMetrics(m *telemetry.ReconcileMetrics) *Engine {
	e.metrics = m
	return e
}

// Execute applies the plan and reports the outcome.
//
// The plan drains in two phases, enrolls then unenrolls, so resources
// stay over-protected during the transition even though operations
// inside a phase run concurrently. Operations in a plan never share a resource
// ID, which keeps per-resource application serialized for free.
//
// Cancellation stops dispatching new operations; in-flight operations
// run to a terminal state and undispatched ones are recorded as
// skipped.
func (e *Engine) Execute(ctx context.Context, plan reconciler.Plan) *Report {
	report := newReport()

	enrolls, unenrolls := plan.SplitPhases()
	e.runPhase(ctx, enrolls, report)
	e.runPhase(ctx, unenrolls, report)

	report.finalize()
	return report
}

func (e *Engine) runPhase(ctx context.Context, ops []types.ReconcileOperation, report *Report) {
	if len(ops) == 0 {
		return
	}

	workers := e.options.MaxConcurrency
	if workers > len(ops) {
		workers = len(ops)
	}

	queue := make(chan types.ReconcileOperation)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for op := range queue {
				e.applyOne(ctx, op, report)
			}
		}()
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			e.recordSkip(op, report)
			continue
		}
		select {
		case queue <- op:
		case <-ctx.Done():
			e.recordSkip(op, report)
		}
	}
	close(queue)
	wg.Wait()
}

func (e *Engine) recordSkip(op types.ReconcileOperation, report *Report) {
	report.recordSkipped(op.ResourceID)
	if e.wal != nil {
		_ = e.wal.Append(wal.EntrySkipped, op.ResourceID, op)
	}
}

// applyOne runs one operation through its state machine:
// Pending -> attempt -> Applied | Retrying -> Pending | FailedTerminal
func (e *Engine) applyOne(ctx context.Context, op types.ReconcileOperation, report *Report) {
	if e.wal != nil {
		_ = e.wal.Append(wal.EntryApplying, op.ResourceID, op)
	}

	attempts := 0
	var lastErr error

	for attempts < e.options.MaxAttempts {
		attempts++
		lastErr = e.call(ctx, op)
		if lastErr == nil {
			e.succeed(ctx, op, attempts, report)
			return
		}

		kind := types.KindOf(lastErr)
		if !kind.IsTransient() || attempts == e.options.MaxAttempts {
			break
		}

		e.logger.LogOperationRetry(ctx, op, kind, attempts)
		if e.metrics != nil {
			e.metrics.RecordRetry(ctx, string(op.Kind))
		}
		if !sleepBackoff(ctx, e.backoffFor(attempts)) {
			break // canceled mid-backoff; fail with the last error
		}
	}

	e.fail(ctx, op, attempts, lastErr, report)
}

func (e *Engine) call(ctx context.Context, op types.ReconcileOperation) error {
	switch op.Kind {
	case types.OpEnroll:
		return e.api.Enroll(ctx, op.ResourceID, e.action)
	case types.OpUnenroll:
		return e.api.Unenroll(ctx, op.ResourceID)
	default:
		return nil
	}
}

func (e *Engine) succeed(ctx context.Context, op types.ReconcileOperation, attempts int, report *Report) {
	report.recordApplied(op.ResourceID, attempts-1)
	e.logger.LogOperationApplied(ctx, op, attempts)
	if e.metrics != nil {
		e.metrics.RecordApplied(ctx, string(op.Kind))
	}
	if e.wal != nil {
		_ = e.wal.Append(wal.EntryApplied, op.ResourceID, op)
	}
}

func (e *Engine) fail(ctx context.Context, op types.ReconcileOperation, attempts int, cause error, report *Report) {
	kind := types.KindOf(cause)
	report.recordFailed(op.ResourceID, kind, attempts-1)
	e.logger.LogOperationFailed(ctx, op, kind, attempts, cause)
	if e.metrics != nil {
		e.metrics.RecordFailed(ctx, string(op.Kind), string(kind))
	}
	if e.wal != nil {
		_ = e.wal.AppendError(wal.EntryFailed, op.ResourceID, op, cause)
	}
}

// backoffFor doubles the base delay per attempt, capped at MaxBackoff
func (e *Engine) backoffFor(attempt int) time.Duration {
	backoff := e.options.BaseBackoff << (attempt - 1)
	if backoff > e.options.MaxBackoff {
		backoff = e.options.MaxBackoff
	}
	return backoff
}

// sleepBackoff waits out the backoff, returning false if canceled
func sleepBackoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
