package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/metrics"
	"github.com/eniz1806/VaultOSS/internal/middleware"
	"github.com/eniz1806/VaultOSS/internal/oss"
)

// Server exposes health, readiness and metrics for a running client and
// drives its lifecycle worker.
type Server struct {
	cfg     *config.Config
	client  *oss.Client
	metrics *metrics.Collector
}

func New(cfg *config.Config, client *oss.Client, mc *metrics.Collector) *Server {
	return &Server{cfg: cfg, client: client, metrics: mc}
}

// Handler returns the HTTP routes served by Run.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(s.metrics.StartTime()))
	mux.HandleFunc("/ready", readyHandler(s.client))
	mux.Handle("/metrics", s.metrics.Handler())
	return middleware.Chain(mux)
}

// Run starts the server and blocks until shutdown signal is received.
// It handles graceful shutdown with a configurable timeout.
func (s *Server) Run() error {
	addr := s.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mode := "direct"
	if s.cfg.FolderMode() {
		mode = "folder"
	}
	slog.Info("vaultoss starting",
		"addr", addr,
		"endpoint", s.cfg.Endpoint,
		"mode", mode,
		"base_bucket", s.cfg.BucketName,
		"expiring_prefixes", len(s.cfg.ExpiringPrefixes),
	)
	if s.cfg.CustomDomain != "" {
		slog.Info("public urls use custom domain", "domain", s.cfg.CustomDomain)
	}

	lcCtx, lcCancel := context.WithCancel(context.Background())
	defer lcCancel()
	go s.client.Worker.Run(lcCtx)
	slog.Info("lifecycle reconcile scheduled", "interval_secs", s.cfg.Lifecycle.ReconcileIntervalSecs)

	if len(s.cfg.Inventory.Containers) > 0 {
		invCtx, invCancel := context.WithCancel(context.Background())
		defer invCancel()
		go s.client.Inventory.Run(invCtx)
		slog.Info("inventory reports scheduled", "containers", len(s.cfg.Inventory.Containers), "interval_secs", s.cfg.Inventory.IntervalSecs)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down gracefully", "signal", sig.String())
	}

	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown timed out", "timeout", timeout, "error", err)
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}
