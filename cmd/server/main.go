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

	"github.com/JonMunkholm/datacompile/internal/admin"
	"github.com/JonMunkholm/datacompile/internal/config"
	"github.com/JonMunkholm/datacompile/internal/logging"
	"github.com/JonMunkholm/datacompile/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"data_dir", cfg.Storage.DataDir,
		"reader", cfg.Upload.Reader,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"audit_mirror", cfg.Database.Enabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	env, err := admin.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open application", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	server := web.NewServer(cfg, env.Service, env.Risk)

	// Background maintenance runs until shutdown begins.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go env.Service.StartMaintenance(jobCtx, env.Maintenance())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for active uploads and background tasks to complete
		if status := env.Service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
		}
		if err := env.Service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("background work did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		return
	}
	<-done
	slog.Info("server stopped")
}
