// Command worker consumes queued ingestion jobs and runs them: CSV
// normalization, sales upsert, then weather, holiday, and local event
// enrichment.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/cafemetrics/sales-ingest-service/internal/adapter/httpapi"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/openmeteo"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/postgres"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/queue"
	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
	"github.com/cafemetrics/sales-ingest-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	tz, err := cfg.Location()
	if err != nil {
		logger.Error("failed to load timezone", "tz", cfg.WeatherTimezone, "error", err)
		os.Exit(1)
	}

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

	sales := postgres.NewSalesRepository(db, cfg, logger)
	jobs := postgres.NewJobRepository(db, logger)
	weather := openmeteo.NewClient(cfg, metrics, logger)

	backfiller := pipeline.NewBackfiller(weather, sales, cfg, clockwork.NewRealClock(), logger, metrics)
	annotator := pipeline.NewAnnotator(cfg, logger)
	runner := pipeline.NewRunner(sales, jobs, backfiller, annotator, tz, logger, metrics)

	reader := queue.NewReader(cfg, logger)
	srv := httpapi.NewOpsServer(cfg.HTTPAddr, postgres.NewReadiness(db), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		metrics.WorkerRunning.Set(1)
		defer metrics.WorkerRunning.Set(0)
		err := reader.Consume(ctx, func(ctx context.Context, job queue.JobMessage) error {
			return runner.Run(ctx, job.JobID, job.Payload)
		})
		if err != nil {
			logger.Error("consume loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("queue reader close error", "error", err)
	}

	logger.Info("shutdown complete")
}
