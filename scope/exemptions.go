package scope

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/suoja/telemetry"
	"github.com/yairfalse/suoja/types"
)

// ExemptionPolicy carves resources out of scope with a Rego rule.
// A rule lives under the suoja namespace and sets data.suoja.exempt to
// true for resources the policy must leave alone:
//
//	package suoja
//	exempt if input.resource.tags["SHIELD_EXEMPT"] == "true"
type ExemptionPolicy struct {
	name   string
	query  rego.PreparedEvalQuery
	logger *telemetry.Logger
	tracer trace.Tracer
}

// ExemptionInput is the input document handed to the Rego evaluator
type ExemptionInput struct {
	Resource types.ResourceRecord `json:"resource"`
}

// LoadExemptionPolicy compiles a Rego exemption policy from a file
func LoadExemptionPolicy(ctx context.Context, path string) (*ExemptionPolicy, error) {
	code, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read exemption policy: %w", err)
	}
	name := filepath.Base(path)
	return CompileExemptionPolicy(ctx, name, string(code))
}

// CompileExemptionPolicy compiles Rego source into a prepared query
func CompileExemptionPolicy(ctx context.Context, name, code string) (*ExemptionPolicy, error) {
	query := rego.New(
		rego.Query("data.suoja.exempt"),
		rego.Module(name, code),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile exemption policy %s: %w", name, err)
	}

	return &ExemptionPolicy{
		name:   name,
		query:  prepared,
		logger: telemetry.NewLogger("exemptions"),
		tracer: otel.Tracer("exemptions"),
	}, nil
}

// Apply re-examines in-scope decisions and flips exempted resources out
// of scope. Out-of-scope decisions pass through untouched.
func (p *ExemptionPolicy) Apply(ctx context.Context, decisions []types.ScopeDecision, inventory []types.ResourceRecord) ([]types.ScopeDecision, error) {
	ctx, span := p.tracer.Start(ctx, "exemptions.apply",
		trace.WithAttributes(attribute.Int("decisions", len(decisions))))
	defer span.End()

	records := types.BuildRecordMap(inventory)

	result := make([]types.ScopeDecision, len(decisions))
	for i, decision := range decisions {
		result[i] = decision
		if !decision.InScope {
			continue
		}

		record, ok := records[decision.ResourceID]
		if !ok {
			continue
		}

		exempt, err := p.isExempt(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("exemption evaluation failed for %s: %w", decision.ResourceID, err)
		}
		if exempt {
			p.logger.WithContext(ctx).Info().
				Str("resource_id", decision.ResourceID).
				Str("policy", p.name).
				Msg("resource exempted from enrollment")
			result[i] = types.ScopeDecision{
				ResourceID: decision.ResourceID,
				InScope:    false,
				Reason:     fmt.Sprintf("exempted by policy %s", p.name),
			}
		}
	}

	return result, nil
}

func (p *ExemptionPolicy) isExempt(ctx context.Context, record types.ResourceRecord) (bool, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(ExemptionInput{Resource: record}))
	if err != nil {
		return false, err
	}

	for _, res := range results {
		for _, expr := range res.Expressions {
			if exempt, ok := expr.Value.(bool); ok && exempt {
				return true, nil
			}
		}
	}
	return false, nil
}
