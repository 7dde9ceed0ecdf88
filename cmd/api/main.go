// Command api serves the sales upload API: it accepts POS CSV exports,
// records a job run, and enqueues the job for the worker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cafemetrics/sales-ingest-service/internal/adapter/httpapi"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/postgres"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/queue"
	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(db, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	jobs := postgres.NewJobRepository(db, logger)
	writer := queue.NewWriter(cfg, logger)
	ready := postgres.NewReadiness(db)

	srv := httpapi.NewServer(cfg.HTTPAddr, jobs, writer, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("queue writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
