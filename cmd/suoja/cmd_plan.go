package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/orchestrator"
	"github.com/yairfalse/suoja/types"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the reconcile plan without applying it",
	Long: `Evaluate scope against the live inventory and show the operations a
reconcile run would issue. No enrollment state is changed.`,
	Example: `  suoja plan --intent intent.yaml
  suoja plan --intent intent.yaml --fixture inventory.yaml
  suoja plan --intent intent.yaml --exemptions exempt.rego`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}

	result, err := orch.WithDryRun(true).Run(ctx)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	displayPlan(result)
	return nil
}

// buildOrchestrator assembles an orchestrator from the shared flags
func buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	policy, err := loadIntent()
	if err != nil {
		return nil, err
	}

	provider, err := createProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	orch := orchestrator.New(policy, provider)

	exemptions, err := loadExemptions(ctx)
	if err != nil {
		return nil, err
	}
	if exemptions != nil {
		orch = orch.WithExemptions(exemptions)
	}

	return orch, nil
}

func displayPlan(result *orchestrator.RunResult) {
	fmt.Printf("🔍 Plan for cluster %s (%s)\n", result.ClusterID, result.Mode)
	fmt.Printf("  📊 Resources evaluated: %d\n", result.Evaluated)
	fmt.Printf("  🎯 In scope: %d\n", result.InScope)
	fmt.Printf("  💤 Already converged: %d\n", result.NoopCount)

	if len(result.Operations) == 0 {
		fmt.Println("\n✨ Nothing to do - enrollment matches intent")
		return
	}

	fmt.Printf("\n  Operations (%d):\n", len(result.Operations))
	for _, op := range result.Operations {
		marker := "+"
		if op.Kind == types.OpUnenroll {
			marker = "-"
		}
		fmt.Printf("  %s %s %s\n", marker, op.Kind, op.ResourceID)
	}
}
