// Package scope decides which inventory resources a policy covers.
package scope

import (
	"fmt"

	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/types"
)

// Evaluate applies the intent's type, tag, and account predicates to an
// inventory snapshot. It is a pure function: the same intent and
// inventory always produce the same decisions, in inventory order.
//
// A resource is in scope only when its type is allowlisted, every
// required tag matches exactly, and its account falls inside the scope.
// Missing any one required tag excludes the resource outright.
func Evaluate(policy *intent.PolicyIntent, inventory []types.ResourceRecord) []types.ScopeDecision {
	decisions := make([]types.ScopeDecision, 0, len(inventory))
	for _, record := range inventory {
		decisions = append(decisions, evaluateOne(policy, record))
	}
	return decisions
}

func evaluateOne(policy *intent.PolicyIntent, record types.ResourceRecord) types.ScopeDecision {
	if !policy.CoversType(record.Type) {
		return outOfScope(record.ID, fmt.Sprintf("type %s not covered by policy", record.Type))
	}

	// Conjunction over required tags, in declared order
	for _, pair := range policy.RequiredTags {
		if !record.HasTag(pair.Key, pair.Value) {
			return outOfScope(record.ID, fmt.Sprintf("required tag %s=%s not present", pair.Key, pair.Value))
		}
	}

	if !policy.AccountScope.Covers(record.AccountID) {
		return outOfScope(record.ID, fmt.Sprintf("account %s outside policy scope", record.AccountID))
	}

	return types.ScopeDecision{
		ResourceID: record.ID,
		InScope:    true,
		Reason:     "matches all scope criteria",
	}
}

func outOfScope(resourceID, reason string) types.ScopeDecision {
	return types.ScopeDecision{ResourceID: resourceID, InScope: false, Reason: reason}
}

// DesiredSet collects the IDs of in-scope resources
func DesiredSet(decisions []types.ScopeDecision) map[string]bool {
	desired := make(map[string]bool)
	for _, d := range decisions {
		if d.InScope {
			desired[d.ResourceID] = true
		}
	}
	return desired
}
