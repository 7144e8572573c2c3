package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/intent"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an intent document",
	Long: `Validate an intent document without touching any provider.

Checks field constraints and cross-field invariants:
- cluster_id is exactly three word characters
- mode and action are consistent
- required_tags include the cluster identity tag
- account_scope does not mix include and exclude`,
	Example: `  suoja validate --intent intent.yaml`,
	RunE:    runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	policy, err := loadIntent()
	if err != nil {
		return err
	}

	fmt.Printf("✅ Intent is valid\n")
	fmt.Printf("  Cluster: %s\n", policy.ClusterID)
	fmt.Printf("  Mode: %s\n", policy.Mode)
	if policy.Action != "" {
		fmt.Printf("  Action: %s\n", policy.Action)
	}
	fmt.Printf("  Resource types: %d\n", len(policy.ResourceTypes))
	fmt.Printf("  Required tags: %d\n", len(policy.RequiredTags))
	if len(policy.AccountScope.Include) > 0 {
		fmt.Printf("  Accounts included: %d\n", len(policy.AccountScope.Include))
	}
	if len(policy.AccountScope.Exclude) > 0 {
		fmt.Printf("  Accounts excluded: %d\n", len(policy.AccountScope.Exclude))
	}

	// Surface the derived identity tag so operators can check their
	// tagging pipeline against it
	fmt.Printf("  Identity tag: %s\n", intent.ClusterTagKey(policy.ClusterID))
	return nil
}
