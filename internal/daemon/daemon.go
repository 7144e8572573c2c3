// Package daemon runs continuous reconciliation with a metrics and
// health endpoint.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/suoja/orchestrator"
	"github.com/yairfalse/suoja/telemetry"
)

// Config holds daemon configuration
type Config struct {
	Interval    time.Duration
	MetricsAddr string
}

// Daemon manages continuous reconciliation
type Daemon struct {
	orch        *orchestrator.Orchestrator
	interval    time.Duration
	metricsAddr string
	logger      *telemetry.Logger

	startTime      time.Time
	reconcileCount atomic.Int64
	lastRunFailed  atomic.Bool

	listener net.Listener
}

// New creates a daemon around one orchestrator
func New(orch *orchestrator.Orchestrator, config Config) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("reconcile interval must be positive, got %s", config.Interval)
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = ":9090"
	}

	return &Daemon{
		orch:        orch,
		interval:    config.Interval,
		metricsAddr: config.MetricsAddr,
		logger:      telemetry.NewLogger("daemon"),
		startTime:   time.Now(),
	}, nil
}

// Start runs the reconcile loop and the metrics server until ctx is
// canceled. One actor failing stops the whole group.
func (d *Daemon) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", d.metricsAddr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener: %w", err)
	}
	d.listener = listener

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group run.Group

	// Reconcile loop
	group.Add(func() error {
		return d.reconcileLoop(ctx)
	}, func(error) {
		cancel()
	})

	// Metrics and health server
	server := &http.Server{
		Handler:           d.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Add(func() error {
		d.logger.Info().Str("addr", listener.Addr().String()).Msg("metrics server listening")
		return server.Serve(listener)
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	})

	err = group.Run()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (d *Daemon) reconcileLoop(ctx context.Context) error {
	// Converge immediately on startup, then on interval
	d.reconcileOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.reconcileOnce(ctx)
		}
	}
}

func (d *Daemon) reconcileOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := d.orch.Run(ctx)
	d.reconcileCount.Add(1)

	if err != nil {
		// Listing failures are transient from the daemon's view: log,
		// mark unhealthy, and wait for the next tick
		d.lastRunFailed.Store(true)
		d.logger.Error().Err(err).Msg("reconciliation run failed")
		return
	}

	d.lastRunFailed.Store(result.Failed())
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status          string `json:"status"`
	Uptime          int64  `json:"uptime_seconds"`
	Reconciliations int64  `json:"reconciliations"`
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	status := "healthy"
	if d.lastRunFailed.Load() {
		status = "degraded"
	}
	return HealthStatus{
		Status:          status,
		Uptime:          int64(time.Since(d.startTime).Seconds()),
		Reconciliations: d.reconcileCount.Load(),
	}
}

// ReconciliationCount returns total reconciliations run
func (d *Daemon) ReconciliationCount() int64 {
	return d.reconcileCount.Load()
}

// MetricsPort returns the bound metrics port, 0 before Start
func (d *Daemon) MetricsPort() int {
	if d.listener == nil {
		return 0
	}
	if addr, ok := d.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/-/healthy", d.handleHealth)
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}
