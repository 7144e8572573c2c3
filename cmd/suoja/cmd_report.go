package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/storage"
	"github.com/yairfalse/suoja/wal"
)

var (
	reportStorage string
	reportWALDir  string
	reportLast    int
	reportAudit   bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show recent reconciliation runs",
	Long: `Show recent reconciliation runs from the run history, newest first,
and optionally replay the audit log entries behind them.`,
	Example: `  suoja report                    # Last 10 runs
  suoja report --last 3           # Last 3 runs
  suoja report --audit            # Include audit log entries`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportStorage, "storage", "./suoja-data", "Run history directory")
	reportCmd.Flags().StringVar(&reportWALDir, "wal-dir", "./suoja-data/wal", "Audit log directory")
	reportCmd.Flags().IntVar(&reportLast, "last", 10, "Number of runs to show")
	reportCmd.Flags().BoolVar(&reportAudit, "audit", false, "Replay audit log entries")
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := storage.Open(reportStorage)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.LastRuns(reportLast)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("📭 No runs recorded yet")
		return nil
	}

	fmt.Printf("📊 Last %d reconciliation runs\n\n", len(records))
	for _, record := range records {
		displayRunRecord(record)
	}

	if reportAudit {
		return displayAuditLog()
	}
	return nil
}

func displayRunRecord(record storage.RunRecord) {
	status := "✅"
	if record.Report != nil && record.Report.FailedCount() > 0 {
		status = "❌"
	}
	if record.DryRun {
		status = "🔍"
	}

	fmt.Printf("%s %s  cluster=%s mode=%s\n", status, record.RunID, record.ClusterID, record.Mode)
	fmt.Printf("   %s  evaluated=%d in_scope=%d noops=%d",
		record.StartedAt.Format("2006-01-02 15:04:05"),
		record.Evaluated, record.InScope, record.NoopCount)
	if record.Report != nil {
		fmt.Printf(" applied=%d failed=%d skipped=%d",
			record.Report.AppliedCount(), record.Report.FailedCount(), record.Report.SkippedCount())
	}
	fmt.Println()
	fmt.Println()
}

func displayAuditLog() error {
	entries, err := wal.ReadAll(reportWALDir)
	if err != nil {
		return fmt.Errorf("failed to replay audit log: %w", err)
	}

	fmt.Printf("📜 Audit log (%d entries)\n\n", len(entries))
	for _, entry := range entries {
		fmt.Printf("  %s  #%d %-9s %s", entry.Timestamp.Format("15:04:05.000"),
			entry.Sequence, entry.Type, entry.ResourceID)
		if entry.Error != "" {
			fmt.Printf("  error=%s", entry.Error)
		}
		fmt.Println()
	}
	return nil
}
