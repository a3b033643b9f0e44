// agentmesh server exposes an agent over the A2A protocol: JSON-RPC, REST,
// SSE streaming, and WebSocket subscriptions on top of a file-backed event
// store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/agentmesh/agentmesh/pkg/agent"
	"github.com/agentmesh/agentmesh/pkg/api"
	"github.com/agentmesh/agentmesh/pkg/config"
	"github.com/agentmesh/agentmesh/pkg/eventstore"
	"github.com/agentmesh/agentmesh/pkg/taskmanager"
	"github.com/agentmesh/agentmesh/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting agentmesh",
		"version", version.Version,
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir)

	store, err := eventstore.NewFileStore(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to open event store", "data_dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	manager := taskmanager.New(store, agent.NewEchoHandler(), taskmanager.Config{
		QueueCapacity:     cfg.QueueCapacity,
		CancelGraceWindow: cfg.CancelGraceWindow,
	})

	server := api.NewServer(cfg, store, manager)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", ":"+cfg.HTTPPort)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Cancel in-flight handler runs; their final events land through the
	// store before the process exits.
	manager.Shutdown()

	slog.Info("Shutdown complete")
}
