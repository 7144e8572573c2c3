// Package reconciler computes the minimal ordered change set that
// converges live enrollment to the desired in-scope set.
package reconciler

import (
	"sort"

	"github.com/yairfalse/suoja/types"
)

// Plan is the ordered set of operations for one reconciliation run.
// Operations holds only mutating steps; no-ops are counted so reports
// can still derive the full picture.
type Plan struct {
	Operations    []types.ReconcileOperation `json:"operations"`
	EnrollCount   int                        `json:"enroll_count"`
	UnenrollCount int                        `json:"unenroll_count"`
	NoopCount     int                        `json:"noop_count"`
}

// IsEmpty reports whether the plan has nothing to apply
func (p Plan) IsEmpty() bool {
	return len(p.Operations) == 0
}

// BuildPlan diffs the desired set against live enrollment.
//
// Enroll operations are ordered before unenroll operations so coverage
// never drops below the desired set mid-convergence: over-protection
// during the transition, never under-protection. Within a kind, ties
// break by resource ID ascending so runs are reproducible.
func BuildPlan(desired map[string]bool, live []types.EnrollmentState) Plan {
	enrolled := types.BuildEnrolledSet(live)

	var enrolls, unenrolls []types.ReconcileOperation
	noops := 0

	for id := range desired {
		if enrolled[id] {
			noops++
			continue
		}
		enrolls = append(enrolls, types.ReconcileOperation{
			Kind:       types.OpEnroll,
			ResourceID: id,
			Reason:     "in scope but not enrolled",
		})
	}

	for id := range enrolled {
		if desired[id] {
			continue // already counted as noop
		}
		unenrolls = append(unenrolls, types.ReconcileOperation{
			Kind:       types.OpUnenroll,
			ResourceID: id,
			Reason:     "enrolled but no longer in scope",
		})
	}

	sortByResourceID(enrolls)
	sortByResourceID(unenrolls)

	plan := Plan{
		Operations:    make([]types.ReconcileOperation, 0, len(enrolls)+len(unenrolls)),
		EnrollCount:   len(enrolls),
		UnenrollCount: len(unenrolls),
		NoopCount:     noops,
	}
	plan.Operations = append(plan.Operations, enrolls...)
	plan.Operations = append(plan.Operations, unenrolls...)
	return plan
}

func sortByResourceID(ops []types.ReconcileOperation) {
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].ResourceID < ops[j].ResourceID
	})
}

// SplitPhases partitions the plan into its enroll and unenroll phases.
// The driver drains the first phase completely before starting the
// second, which preserves ordering under concurrent application.
func (p Plan) SplitPhases() (enrolls, unenrolls []types.ReconcileOperation) {
	for _, op := range p.Operations {
		switch op.Kind {
		case types.OpEnroll:
			enrolls = append(enrolls, op)
		case types.OpUnenroll:
			unenrolls = append(unenrolls, op)
		}
	}
	return enrolls, unenrolls
}
