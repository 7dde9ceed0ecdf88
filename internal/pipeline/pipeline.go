// Package pipeline orchestrates one ingestion job: normalize the uploaded
// CSV, upsert sales facts, then enrich the affected dates with weather,
// holiday, and local event data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cafemetrics/sales-ingest-service/internal/domain"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
)

// SalesStore persists normalized sales facts and their enrichment columns.
type SalesStore interface {
	Upsert(ctx context.Context, records []domain.SaleRecord) (int, error)
	UpdateDailyWeather(ctx context.Context, daily map[time.Time]domain.DailyWeather) (int, error)
	SetHolidayFlags(ctx context.Context, flags []domain.DateFlag) (int, error)
	SetLocalEventFlags(ctx context.Context, flags []domain.DateFlag) (int, error)
}

// JobStore persists job runs and their append-only progress logs.
type JobStore interface {
	Create(ctx context.Context, jobID, startedBy string) error
	Get(ctx context.Context, jobID string) (domain.JobRun, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkFinished(ctx context.Context, jobID string, status domain.JobStatus) error
	SetReady(ctx context.Context, jobID string, ready bool) error
	AppendLog(ctx context.Context, jobID, line string) error
}

// WeatherSource fetches hourly weather for an inclusive date range.
type WeatherSource interface {
	FetchHourly(ctx context.Context, start, end time.Time) (domain.HourlySeries, error)
}

// Runner executes ingestion jobs end to end.
type Runner struct {
	sales      SalesStore
	jobs       JobStore
	backfiller *Backfiller
	annotator  *Annotator
	tz         *time.Location
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRunner creates a job runner. tz is the store's local timezone, used when
// sale days must be derived from creation timestamps.
func NewRunner(sales SalesStore, jobs JobStore, backfiller *Backfiller, annotator *Annotator, tz *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		sales:      sales,
		jobs:       jobs,
		backfiller: backfiller,
		annotator:  annotator,
		tz:         tz,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run processes one dequeued job. Infrastructure errors are returned after
// the job is marked FAILED; validation failures mark the job FAILED and
// return nil because redelivery cannot fix a bad file.
func (r *Runner) Run(ctx context.Context, jobID string, payload []byte) (err error) {
	logger := r.logger.With("job_id", jobID)

	if err := r.jobs.MarkRunning(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Redelivered after a previous attempt already moved the job on.
			logger.Warn("skipping job not in QUEUED state")
			return nil
		}
		return fmt.Errorf("mark job running: %w", err)
	}

	r.metrics.JobsStarted.Inc()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked", "panic", rec)
			r.fail(ctx, jobID, fmt.Sprintf("panic: %v\n%s", rec, debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", jobID, rec)
		}
	}()

	records, ok, err := r.normalize(ctx, jobID, logger, payload)
	if err != nil || !ok {
		return err
	}

	if err := r.ingest(ctx, jobID, records); err != nil {
		logger.Error("job failed", "error", err)
		r.fail(ctx, jobID, err.Error())
		return err
	}

	r.appendLog(ctx, jobID, "Upload Success! Data inserted and enrichment complete.")
	if err := r.jobs.MarkFinished(ctx, jobID, domain.StatusSuccess); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	r.metrics.JobsSucceeded.Inc()
	r.metrics.JobDuration.Observe(time.Since(start).Seconds())
	logger.Info("job succeeded", "rows", len(records), "duration", time.Since(start))
	return nil
}

// normalize parses and validates the payload. ok=false means the job was
// terminated here (validation failure) and there is nothing more to do.
func (r *Runner) normalize(ctx context.Context, jobID string, logger *slog.Logger, payload []byte) ([]domain.SaleRecord, bool, error) {
	r.appendLog(ctx, jobID, "Parsing CSV ...")

	records, err := domain.Normalize(payload, r.tz)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("upload rejected", "error", verr.Message)
			r.metrics.ValidationFailures.Inc()
			r.fail(ctx, jobID, verr.Message)
			return nil, false, nil
		}
		r.fail(ctx, jobID, err.Error())
		return nil, false, err
	}

	r.appendLog(ctx, jobID, fmt.Sprintf("Rows after filter: %d", len(records)))
	return records, true, nil
}

// ingest runs upsert and all enrichment stages for a normalized batch.
func (r *Runner) ingest(ctx context.Context, jobID string, records []domain.SaleRecord) error {
	upserted, err := r.sales.Upsert(ctx, records)
	if err != nil {
		return err
	}
	r.metrics.RowsUpserted.Add(float64(upserted))
	r.appendLog(ctx, jobID, fmt.Sprintf("Upserted rows: %d", upserted))

	dates := domain.DistinctDates(records)
	if len(dates) == 0 {
		// A valid file whose rows were all footers: nothing to enrich.
		return r.jobs.SetReady(ctx, jobID, true)
	}

	r.appendLog(ctx, jobID, fmt.Sprintf("Backfilling weather for %d day(s) ...", len(dates)))
	result, err := r.backfiller.Backfill(ctx, dates)
	if err != nil {
		return err
	}
	for _, w := range result.Skipped {
		r.appendLog(ctx, jobID, fmt.Sprintf("Weather window %s..%s skipped after fetch error",
			w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly)))
	}
	r.appendLog(ctx, jobID, fmt.Sprintf("Weather updated rows: %d", result.Updated))

	r.appendLog(ctx, jobID, "Setting holiday flags ...")
	holidays, err := r.sales.SetHolidayFlags(ctx, r.annotator.HolidayFlags(dates))
	if err != nil {
		return err
	}
	r.appendLog(ctx, jobID, fmt.Sprintf("Holidays set for %d day(s)", holidays))

	r.appendLog(ctx, jobID, "Setting local event flags ...")
	events, err := r.sales.SetLocalEventFlags(ctx, r.annotator.LocalEventFlags(dates))
	if err != nil {
		return err
	}
	r.appendLog(ctx, jobID, fmt.Sprintf("Local events set for %d day(s)", events))

	return r.jobs.SetReady(ctx, jobID, true)
}

// fail records the error in the job log and moves the job to FAILED. Both
// writes are best-effort: the job may be unreachable because the database
// itself is the failure.
func (r *Runner) fail(ctx context.Context, jobID, message string) {
	r.appendLog(ctx, jobID, "ERROR: "+message)
	if err := r.jobs.MarkFinished(ctx, jobID, domain.StatusFailed); err != nil {
		r.logger.Error("marking job failed", "job_id", jobID, "error", err)
	}
	r.metrics.JobsFailed.Inc()
}

func (r *Runner) appendLog(ctx context.Context, jobID, line string) {
	if err := r.jobs.AppendLog(ctx, jobID, line); err != nil {
		r.logger.Error("appending job log", "job_id", jobID, "error", err)
	}
}
