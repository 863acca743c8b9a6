package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/bizimport/internal/config"
	"github.com/JonMunkholm/bizimport/internal/importer"
	_ "github.com/JonMunkholm/bizimport/internal/importer/entities" // Register built-in entities
	"github.com/JonMunkholm/bizimport/internal/logging"
	"github.com/JonMunkholm/bizimport/internal/sink"
	"github.com/JonMunkholm/bizimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"sink", cfg.Sink.Driver,
		"default_entity", cfg.Import.DefaultEntity,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"session_max", cfg.Session.MaxSessions,
	)

	slog.Info("entities registered", "types", importer.Types())

	// Open the commit sink
	ctx := context.Background()
	records, closeSink, err := sink.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open sink", "driver", cfg.Sink.Driver, "error", err)
		os.Exit(1)
	}
	defer closeSink()

	server, err := web.NewServer(cfg, records)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go server.StartSweeper(jobCtx)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active reads and commits to complete (with timeout)
		if status := server.UploadStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := server.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		closeSink()
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
