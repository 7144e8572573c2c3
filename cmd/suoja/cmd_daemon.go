package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/internal/daemon"
	"github.com/yairfalse/suoja/storage"
	"github.com/yairfalse/suoja/telemetry"
	"github.com/yairfalse/suoja/wal"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
	daemonStorage     string
	daemonWALDir      string
	daemonOTLP        string
	daemonInsecure    bool
	daemonSampleRate  float64
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous reconciliation",
	Long: `Run suoja in daemon mode, reconciling on a fixed interval.

Features:
- Continuous reconciliation loop with convergence on startup
- Prometheus metrics on /metrics
- Health checks on /health, /-/healthy, /-/ready
- OTLP trace export when an endpoint is configured
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  suoja daemon --intent intent.yaml
  suoja daemon --intent intent.yaml --interval 1m
  suoja daemon --intent intent.yaml --metrics :2112
  suoja daemon --intent intent.yaml --otlp-endpoint collector:4317 --otlp-insecure`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 5*time.Minute, "Reconciliation interval")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics", ":9090", "Metrics server address")
	daemonCmd.Flags().StringVar(&daemonStorage, "storage", "./suoja-data", "Run history directory")
	daemonCmd.Flags().StringVar(&daemonWALDir, "wal-dir", "./suoja-data/wal", "Audit log directory")
	daemonCmd.Flags().StringVar(&daemonOTLP, "otlp-endpoint", "", "OTLP trace collector endpoint")
	daemonCmd.Flags().BoolVar(&daemonInsecure, "otlp-insecure", false, "Disable TLS for OTLP export")
	daemonCmd.Flags().Float64Var(&daemonSampleRate, "trace-sample-rate", 1.0, "Trace sampling ratio")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetryProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "suoja",
		ServiceVersion: version,
		OTLPEndpoint:   daemonOTLP,
		Insecure:       daemonInsecure,
		SampleRate:     daemonSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = telemetryProvider.Shutdown(shutdownCtx)
	}()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}

	store, err := storage.Open(daemonStorage)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer func() { _ = store.Close() }()

	auditLog, err := wal.Open(daemonWALDir, "")
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	metrics, err := telemetry.NewReconcileMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	orch = orch.WithStore(store).WithWAL(auditLog).WithMetrics(metrics)

	d, err := daemon.New(orch, daemon.Config{
		Interval:    daemonInterval,
		MetricsAddr: daemonMetricsAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("🚀 Suoja daemon starting\n")
	fmt.Printf("   Interval: %s\n", daemonInterval)
	fmt.Printf("   Metrics: %s\n", daemonMetricsAddr)
	fmt.Printf("   Storage: %s\n\n", daemonStorage)
	fmt.Println("✨ Daemon running (Ctrl+C to stop)...")

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	fmt.Println("\n👋 Daemon stopped")
	return nil
}
