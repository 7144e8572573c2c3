package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/orchestrator"
	"github.com/yairfalse/suoja/storage"
	"github.com/yairfalse/suoja/wal"
)

var (
	reconcileDryRun  bool
	reconcileStorage string
	reconcileWALDir  string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation cycle",
	Long: `Run a single reconciliation cycle:

1. Load and validate the intent document
2. Snapshot the resource inventory
3. Evaluate scope (types, tags, accounts, exemptions)
4. Diff desired enrollment against live enrollment
5. Apply enrolls, then unenrolls, with retry on transient failures
6. Record the run in history and the audit log

Exits non-zero if any operation failed terminally.`,
	Example: `  suoja reconcile --intent intent.yaml
  suoja reconcile --intent intent.yaml --dry-run
  suoja reconcile --intent intent.yaml --storage ./suoja-data`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Plan without applying")
	reconcileCmd.Flags().StringVar(&reconcileStorage, "storage", "./suoja-data", "Run history directory")
	reconcileCmd.Flags().StringVar(&reconcileWALDir, "wal-dir", "./suoja-data/wal", "Audit log directory")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(reconcileStorage, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	store, err := storage.Open(reconcileStorage)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer func() { _ = store.Close() }()
	orch = orch.WithStore(store)

	auditLog, err := wal.Open(reconcileWALDir, "")
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()
	orch = orch.WithWAL(auditLog)

	if reconcileDryRun {
		fmt.Println("🔍 Running in DRY-RUN mode - no changes will be made")
		orch = orch.WithDryRun(true)
	}

	fmt.Println("🔄 Starting reconciliation cycle...")
	result, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	displayReconcileResult(result)

	if result.Failed() {
		os.Exit(result.ExitCode())
	}
	return nil
}

func displayReconcileResult(result *orchestrator.RunResult) {
	fmt.Println("\n✅ Reconciliation Complete")
	fmt.Printf("  🆔 Run: %s\n", result.RunID)
	fmt.Printf("  📊 Resources evaluated: %d\n", result.Evaluated)
	fmt.Printf("  🎯 In scope: %d\n", result.InScope)
	fmt.Printf("  ➕ Enrolled: %d\n", result.Enrolled)
	fmt.Printf("  ➖ Unenrolled: %d\n", result.Unenrolled)
	fmt.Printf("  💤 Already converged: %d\n", result.NoopCount)
	fmt.Printf("  ⏱️  Duration: %s\n", result.Duration)

	if result.Report != nil && result.Report.FailedCount() > 0 {
		fmt.Printf("\n⚠️  Failed operations:\n")
		for resourceID, kind := range result.Report.Failed {
			fmt.Printf("  - %s (%s)\n", resourceID, kind)
		}
		fmt.Println("\n❌ Some operations failed - see audit log for details")
		return
	}

	fmt.Println("\n✨ All operations completed successfully")
}
