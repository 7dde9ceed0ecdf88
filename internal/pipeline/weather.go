package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
)

// BackfillResult reports one weather backfill pass.
type BackfillResult struct {
	// Updated is the number of distinct sale days whose weather columns
	// were written.
	Updated int
	// Skipped lists fetch windows abandoned after an archive error. Days in
	// a skipped window keep whatever weather they already had.
	Skipped []domain.DateWindow
}

// Backfiller fetches archive weather for the date span of a batch and writes
// the daily aggregates onto matching sales rows.
type Backfiller struct {
	source    WeatherSource
	sales     SalesStore
	clock     clockwork.Clock
	pacing    time.Duration
	chunkDays int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewBackfiller creates a weather backfiller. clock is injectable so tests
// can fake the inter-window pacing sleep.
func NewBackfiller(source WeatherSource, sales SalesStore, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Backfiller {
	return &Backfiller{
		source:    source,
		sales:     sales,
		clock:     clock,
		pacing:    cfg.WeatherPacing,
		chunkDays: cfg.WeatherChunkDays,
		logger:    logger,
		metrics:   metrics,
	}
}

// Backfill fetches hourly weather covering [min(dates), max(dates)] in chunked
// windows and writes daily aggregates for exactly the requested dates. A
// failed window is skipped rather than failing the job; each successful fetch
// is followed by a pacing pause to stay inside the archive's rate limits.
func (b *Backfiller) Backfill(ctx context.Context, dates []time.Time) (BackfillResult, error) {
	if len(dates) == 0 {
		return BackfillResult{}, nil
	}

	requested := make(map[time.Time]struct{}, len(dates))
	first, last := domain.DateOf(dates[0]), domain.DateOf(dates[0])
	for _, d := range dates {
		day := domain.DateOf(d)
		requested[day] = struct{}{}
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	var result BackfillResult
	daily := make(map[time.Time]domain.DailyWeather)

	for _, w := range domain.Windows(first, last, b.chunkDays) {
		series, err := b.source.FetchHourly(ctx, w.Start, w.End)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			b.logger.Warn("weather window fetch failed",
				"start", w.Start.Format(time.DateOnly),
				"end", w.End.Format(time.DateOnly),
				"error", err)
			b.metrics.WeatherWindowFetches.WithLabelValues("error").Inc()
			result.Skipped = append(result.Skipped, w)
			continue
		}
		b.metrics.WeatherWindowFetches.WithLabelValues("success").Inc()

		// The fetched span covers the full [min, max] range; only days the
		// batch actually touched are written back.
		for day, agg := range domain.AggregateDaily(series) {
			if _, ok := requested[day]; ok {
				daily[day] = agg
			}
		}

		if err := b.pace(ctx); err != nil {
			return result, err
		}
	}

	updated, err := b.sales.UpdateDailyWeather(ctx, daily)
	if err != nil {
		return result, err
	}
	result.Updated = updated
	b.metrics.WeatherDatesUpdated.Add(float64(updated))
	return result, nil
}

func (b *Backfiller) pace(ctx context.Context) error {
	if b.pacing <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.clock.After(b.pacing):
		return nil
	}
}
