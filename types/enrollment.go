package types

import "fmt"

// Action is the enforcement action applied to enrolled resources
type Action string

const (
	ActionBlock Action = "BLOCK"
	ActionCount Action = "COUNT"
)

// EnrollmentState represents live provider state for one resource.
// It is owned by the provider and read-only to the reconciler except
// through enroll/unenroll operations.
type EnrollmentState struct {
	ResourceID string `json:"resource_id"`
	Enrolled   bool   `json:"enrolled"`
}

// ScopeDecision records whether a resource is in scope and why.
// Decisions are ephemeral and only meaningful against the snapshot
// they were computed from.
type ScopeDecision struct {
	ResourceID string `json:"resource_id"`
	InScope    bool   `json:"in_scope"`
	Reason     string `json:"reason"`
}

// OpKind categorizes a reconcile operation
type OpKind string

const (
	OpEnroll   OpKind = "enroll"
	OpUnenroll OpKind = "unenroll"
	OpNoop     OpKind = "noop"
)

// ReconcileOperation is a single convergence step for one resource
type ReconcileOperation struct {
	Kind       OpKind `json:"kind"`
	ResourceID string `json:"resource_id"`
	Reason     string `json:"reason,omitempty"`
}

// Validate ensures the operation has required fields
func (op ReconcileOperation) Validate() error {
	if op.ResourceID == "" {
		return fmt.Errorf("operation resource ID cannot be empty")
	}
	switch op.Kind {
	case OpEnroll, OpUnenroll, OpNoop:
		return nil
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// IsMutating reports whether the operation changes provider state
func (op ReconcileOperation) IsMutating() bool {
	return op.Kind == OpEnroll || op.Kind == OpUnenroll
}

// BuildEnrolledSet collects the IDs of currently enrolled resources
func BuildEnrolledSet(states []EnrollmentState) map[string]bool {
	enrolled := make(map[string]bool, len(states))
	for _, state := range states {
		if state.Enrolled {
			enrolled[state.ResourceID] = true
		}
	}
	return enrolled
}
