package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter
	WorkerRunning prometheus.Gauge

	// Normalization metrics.
	RowsUpserted       prometheus.Counter
	ValidationFailures prometheus.Counter

	// Enrichment metrics.
	WeatherWindowFetches *prometheus.CounterVec // labels: outcome={success,error}
	WeatherDatesUpdated  prometheus.Counter
	WeatherAPIDuration   prometheus.Histogram

	JobDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "jobs_started_total",
			Help:      "Total ingestion jobs picked up by the worker.",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "jobs_succeeded_total",
			Help:      "Total ingestion jobs that finished SUCCESS.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "jobs_failed_total",
			Help:      "Total ingestion jobs that finished FAILED.",
		}),
		WorkerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sales_etl",
			Name:      "worker_running",
			Help:      "1 when the worker consume loop is active, 0 when shut down.",
		}),
		RowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "rows_upserted_total",
			Help:      "Total normalized sales rows written to storage.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "validation_failures_total",
			Help:      "Total uploads rejected during CSV normalization.",
		}),
		WeatherWindowFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "weather_window_fetches_total",
			Help:      "Weather archive window fetches by outcome.",
		}, []string{"outcome"}),
		WeatherDatesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sales_etl",
			Name:      "weather_dates_updated_total",
			Help:      "Total sale dates whose weather columns were backfilled.",
		}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sales_etl",
			Name:      "weather_api_duration_seconds",
			Help:      "Weather archive request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sales_etl",
			Name:      "job_duration_seconds",
			Help:      "Duration of a complete ingest-and-enrich job.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	prometheus.MustRegister(
		m.JobsStarted,
		m.JobsSucceeded,
		m.JobsFailed,
		m.WorkerRunning,
		m.RowsUpserted,
		m.ValidationFailures,
		m.WeatherWindowFetches,
		m.WeatherDatesUpdated,
		m.WeatherAPIDuration,
		m.JobDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		JobsStarted:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "jobs_started_total"}),
		JobsSucceeded:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "jobs_succeeded_total"}),
		JobsFailed:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "jobs_failed_total"}),
		WorkerRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sales_etl", Name: "worker_running"}),
		RowsUpserted:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "rows_upserted_total"}),
		ValidationFailures:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "validation_failures_total"}),
		WeatherWindowFetches: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "sales_etl", Name: "weather_window_fetches_total"}, []string{"outcome"}),
		WeatherDatesUpdated:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sales_etl", Name: "weather_dates_updated_total"}),
		WeatherAPIDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sales_etl", Name: "weather_api_duration_seconds"}),
		JobDuration:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sales_etl", Name: "job_duration_seconds"}),
	}
}
