package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/metrics"
	"github.com/eniz1806/VaultOSS/internal/oss"
	"github.com/eniz1806/VaultOSS/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/vaultoss.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	mc := metrics.NewCollector()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	client, err := oss.New(ctx, cfg, oss.WithMetrics(mc))
	if err != nil {
		cancel()
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	// Base bucket and configured expirations must be in place before serving.
	err = client.Bootstrap(ctx)
	cancel()
	if err != nil {
		client.Close()
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Run blocks until shutdown signal
	err = server.New(cfg, client, mc).Run()
	if cerr := client.Close(); cerr != nil {
		slog.Warn("close client", "error", cerr)
	}
	if err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
