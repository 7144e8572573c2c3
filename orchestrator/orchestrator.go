// Package orchestrator coordinates one reconciliation run:
// intent -> inventory snapshot -> scope -> plan -> execute -> record.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/suoja/executor"
	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/providers"
	"github.com/yairfalse/suoja/reconciler"
	"github.com/yairfalse/suoja/scope"
	"github.com/yairfalse/suoja/storage"
	"github.com/yairfalse/suoja/telemetry"
	"github.com/yairfalse/suoja/types"
	"github.com/yairfalse/suoja/wal"
)

// Orchestrator runs the reconciliation pipeline
type Orchestrator struct {
	policy      *intent.PolicyIntent
	provider    providers.Provider
	store       *storage.RunStore
	auditLog    *wal.WAL
	exemptions  *scope.ExemptionPolicy
	metrics     *telemetry.ReconcileMetrics
	logger      *telemetry.Logger
	tracer      trace.Tracer
	execOptions executor.Options
	dryRun      bool
}

// RunResult summarizes one reconciliation run
type RunResult struct {
	RunID      string                     `json:"run_id"`
	ClusterID  string                     `json:"cluster_id"`
	Mode       intent.Mode                `json:"mode"`
	DryRun     bool                       `json:"dry_run"`
	Evaluated  int                        `json:"evaluated"`
	InScope    int                        `json:"in_scope"`
	Enrolled   int                        `json:"enrolled"`
	Unenrolled int                        `json:"unenrolled"`
	NoopCount  int                        `json:"noop_count"`
	Operations []types.ReconcileOperation `json:"operations"`
	Report     *executor.Report           `json:"report,omitempty"`
	Duration   time.Duration              `json:"duration"`
}

// Failed reports whether any operation failed terminally
func (r *RunResult) Failed() bool {
	return r.Report != nil && r.Report.FailedCount() > 0
}

// ExitCode is 0 iff the run converged without failures
func (r *RunResult) ExitCode() int {
	if r.Failed() {
		return 1
	}
	return 0
}

// New creates an orchestrator for one intent and provider
func New(policy *intent.PolicyIntent, provider providers.Provider) *Orchestrator {
	return &Orchestrator{
		policy:      policy,
		provider:    provider,
		logger:      telemetry.NewLogger("orchestrator"),
		tracer:      otel.Tracer("orchestrator"),
		execOptions: executor.DefaultOptions(),
	}
}

// WithStore records runs to persistent history
func (o *Orchestrator) WithStore(s *storage.RunStore) *Orchestrator {
	o.store = s
	return o
}

// WithWAL attaches an audit log
func (o *Orchestrator) WithWAL(w *wal.WAL) *Orchestrator {
	o.auditLog = w
	return o
}

// WithExemptions attaches a Rego exemption policy
func (o *Orchestrator) WithExemptions(p *scope.ExemptionPolicy) *Orchestrator {
	o.exemptions = p
	return o
}

// WithMetrics attaches reconcile metrics
func (o *Orchestrator) WithMetrics(m *telemetry.ReconcileMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithExecutorOptions overrides driver defaults
func (o *Orchestrator) WithExecutorOptions(opts executor.Options) *Orchestrator {
	o.execOptions = opts
	return o
}

// WithDryRun plans without mutating provider state
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	o.dryRun = dryRun
	return o
}

// Run executes one reconciliation cycle. Inventory and enrollment
// listing failures abort before any mutating call; per-operation
// failures are isolated and surface only in the report.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.NewString()
	startTime := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("cluster.id", o.policy.ClusterID)))
	defer span.End()

	o.logger.LogRunStart(ctx, runID, o.policy.ClusterID)

	result := &RunResult{
		RunID:     runID,
		ClusterID: o.policy.ClusterID,
		Mode:      o.policy.Mode,
		DryRun:    o.dryRun,
	}

	if o.policy.Mode == intent.ModeIgnored {
		// Policy asks to be left alone entirely
		result.Duration = time.Since(startTime)
		o.recordRun(ctx, startTime, result)
		return result, nil
	}

	plan, err := o.buildPlan(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Operations = plan.Operations
	result.NoopCount = plan.NoopCount

	if !o.dryRun && !plan.IsEmpty() {
		o.execute(ctx, plan, result)
	}

	result.Duration = time.Since(startTime)
	o.recordRun(ctx, startTime, result)
	o.logRunComplete(ctx, result)

	return result, nil
}

// buildPlan snapshots inventory and live enrollment, evaluates scope,
// and diffs the two sets
func (o *Orchestrator) buildPlan(ctx context.Context, result *RunResult) (reconciler.Plan, error) {
	inventory, err := o.provider.ListResources(ctx, o.policy.AccountScope)
	if err != nil {
		return reconciler.Plan{}, types.NewProviderError(types.KindInventoryUnavailable,
			fmt.Errorf("inventory snapshot failed: %w", err))
	}
	result.Evaluated = len(inventory)

	if o.auditLog != nil {
		_ = o.auditLog.Append(wal.EntryObserved, "", map[string]int{"resources_found": len(inventory)})
	}

	decisions := scope.Evaluate(o.policy, inventory)
	if o.exemptions != nil {
		decisions, err = o.exemptions.Apply(ctx, decisions, inventory)
		if err != nil {
			return reconciler.Plan{}, err
		}
	}

	desired := scope.DesiredSet(decisions)
	result.InScope = len(desired)
	if o.metrics != nil {
		o.metrics.SetInScope(len(desired))
	}
	o.logger.LogScopeEvaluated(ctx, result.RunID, len(inventory), len(desired))

	if o.policy.Mode == intent.ModeDisabled {
		// Protection disabled: converge to an empty desired set
		desired = map[string]bool{}
	}

	live, err := o.provider.ListEnrolled(ctx, o.policy.AccountScope)
	if err != nil {
		return reconciler.Plan{}, types.NewProviderError(types.KindInventoryUnavailable,
			fmt.Errorf("enrollment listing failed: %w", err))
	}

	plan := reconciler.BuildPlan(desired, live)
	o.logger.LogPlanBuilt(ctx, result.RunID, plan.EnrollCount, plan.UnenrollCount, plan.NoopCount)

	if o.auditLog != nil {
		for _, op := range plan.Operations {
			_ = o.auditLog.Append(wal.EntryPlanned, op.ResourceID, op)
		}
	}

	return plan, nil
}

func (o *Orchestrator) execute(ctx context.Context, plan reconciler.Plan, result *RunResult) {
	engine := executor.NewEngine(o.provider, o.policy.Action, o.execOptions)
	if o.auditLog != nil {
		engine = engine.WithWAL(o.auditLog)
	}
	if o.metrics != nil {
		engine = engine.WithMetrics(o.metrics)
	}

	result.Report = engine.Execute(ctx, plan)
	result.Enrolled, result.Unenrolled = countApplied(plan, result.Report)
}

func countApplied(plan reconciler.Plan, report *executor.Report) (enrolled, unenrolled int) {
	kinds := make(map[string]types.OpKind, len(plan.Operations))
	for _, op := range plan.Operations {
		kinds[op.ResourceID] = op.Kind
	}
	for _, resourceID := range report.Applied {
		switch kinds[resourceID] {
		case types.OpEnroll:
			enrolled++
		case types.OpUnenroll:
			unenrolled++
		}
	}
	return enrolled, unenrolled
}

func (o *Orchestrator) recordRun(ctx context.Context, startTime time.Time, result *RunResult) {
	if o.metrics != nil {
		o.metrics.RecordRun(ctx, result.ClusterID, result.Duration.Seconds(), result.Failed())
	}
	if o.store == nil {
		return
	}

	record := storage.RunRecord{
		RunID:      result.RunID,
		ClusterID:  result.ClusterID,
		Mode:       string(result.Mode),
		StartedAt:  startTime,
		Evaluated:  result.Evaluated,
		InScope:    result.InScope,
		NoopCount:  result.NoopCount,
		DryRun:     result.DryRun,
		Operations: result.Operations,
		Report:     result.Report,
	}
	if _, err := o.store.SaveRun(record); err != nil {
		o.logger.WithContext(ctx).Error().
			Err(err).
			Str("run_id", result.RunID).
			Msg("failed to persist run record")
	}
}

func (o *Orchestrator) logRunComplete(ctx context.Context, result *RunResult) {
	applied, failed, skipped := 0, 0, 0
	if result.Report != nil {
		applied = result.Report.AppliedCount()
		failed = result.Report.FailedCount()
		skipped = result.Report.SkippedCount()
	}
	o.logger.LogRunComplete(ctx, result.RunID, applied, failed, skipped,
		float64(result.Duration.Milliseconds()))
}
