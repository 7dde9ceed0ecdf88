//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cafemetrics/sales-ingest-service/internal/adapter/openmeteo"
	"github.com/cafemetrics/sales-ingest-service/internal/adapter/postgres"
	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
	"github.com/cafemetrics/sales-ingest-service/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		TableSchema:      "public",
		TableName:        "daily_items_sale",
		WeatherChunkDays: 31,
		WeatherTimezone:  "Australia/Sydney",
		HolidayRegion:    "AU",
		EventArea:        "Bondi Junction",
	}
}

// startPostgres launches a throwaway PostgreSQL container, runs migrations,
// and returns a connected handle.
func startPostgres(ctx context.Context, t *testing.T) *sqlx.DB {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("sales"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(db, discardLogger()))
	return db
}

type salesRow struct {
	SaleDay         time.Time `db:"sale_day"`
	ItemName        string    `db:"item_name"`
	VariationID     string    `db:"variation_id"`
	Quantity        int       `db:"quantity"`
	WeatherCode     *int      `db:"weather_code"`
	Temperature     *float64  `db:"temperature"`
	Humidity        *float64  `db:"humidity"`
	Precipitation   *float64  `db:"precipitation"`
	IsHoliday       *int16    `db:"is_holiday"`
	IsLocalEvent    *int16    `db:"is_local_event"`
	FirstInsertedAt time.Time `db:"created_at"`
}

func fetchRow(t *testing.T, db *sqlx.DB, day, item, variation string) salesRow {
	t.Helper()
	var row salesRow
	err := db.Get(&row, `
		SELECT sale_day, item_name, variation_id, quantity, weather_code,
		       temperature, humidity, precipitation, is_holiday, is_local_event, created_at
		FROM daily_items_sale
		WHERE sale_day = $1 AND item_name = $2 AND variation_id = $3
	`, day, item, variation)
	require.NoError(t, err)
	return row
}

func TestSalesRepository_UpsertIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	db := startPostgres(ctx, t)
	repo := postgres.NewSalesRepository(db, testConfig(), discardLogger())

	variation := "Regular"
	batch := []domain.SaleRecord{
		{
			SaleDate:          time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
			ItemName:          "Latte",
			ItemVariationName: &variation,
			VariationID:       "LT-R",
			Quantity:          2,
		},
	}

	n, err := repo.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first := fetchRow(t, db, "2024-01-05", "Latte", "LT-R")
	assert.Equal(t, 2, first.Quantity)

	// Re-upload with a corrected quantity: quantity changes, created_at and
	// enrichment columns are untouched.
	_, err = db.ExecContext(ctx,
		`UPDATE daily_items_sale SET weather_code = 3, is_holiday = 1 WHERE item_name = 'Latte'`)
	require.NoError(t, err)

	batch[0].Quantity = 7
	n, err = repo.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second := fetchRow(t, db, "2024-01-05", "Latte", "LT-R")
	assert.Equal(t, 7, second.Quantity)
	assert.Equal(t, first.FirstInsertedAt, second.FirstInsertedAt)
	require.NotNil(t, second.WeatherCode)
	assert.Equal(t, 3, *second.WeatherCode)
	require.NotNil(t, second.IsHoliday)
	assert.Equal(t, int16(1), *second.IsHoliday)
}

func TestJobRepository_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	db := startPostgres(ctx, t)
	jobs := postgres.NewJobRepository(db, discardLogger())

	require.NoError(t, jobs.Create(ctx, "job-1", "owner@example.com"))

	job, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.False(t, job.ReadyForPrediction)

	// RUNNING before QUEUED is not reachable; FAILED before RUNNING is not
	// reachable either.
	require.ErrorIs(t, jobs.MarkFinished(ctx, "job-1", domain.StatusFailed), domain.ErrInvalidTransition)

	require.NoError(t, jobs.MarkRunning(ctx, "job-1"))
	require.ErrorIs(t, jobs.MarkRunning(ctx, "job-1"), domain.ErrInvalidTransition)

	require.NoError(t, jobs.AppendLog(ctx, "job-1", "Parsing CSV ..."))
	require.NoError(t, jobs.AppendLog(ctx, "job-1", "Upserted rows: 3"))
	require.NoError(t, jobs.SetReady(ctx, "job-1", true))
	require.NoError(t, jobs.MarkFinished(ctx, "job-1", domain.StatusSuccess))

	// Terminal states are sticky.
	require.ErrorIs(t, jobs.MarkRunning(ctx, "job-1"), domain.ErrInvalidTransition)
	require.ErrorIs(t, jobs.MarkFinished(ctx, "job-1", domain.StatusFailed), domain.ErrInvalidTransition)

	job, err = jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, job.Status)
	assert.True(t, job.ReadyForPrediction)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
	assert.Equal(t, "Parsing CSV ...\nUpserted rows: 3\n", job.Log)

	_, err = jobs.Get(ctx, "no-such-job")
	require.ErrorIs(t, err, domain.ErrUnknownJob)
}

// TestRunner_EndToEnd drives a full job against real PostgreSQL with a stub
// weather archive: normalize a messy CSV, upsert, backfill weather, set
// holiday and event flags, and finish SUCCESS with the ready gate open.
func TestRunner_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	db := startPostgres(ctx, t)
	cfg := testConfig()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	temp1, temp2 := 22.0, 24.0
	hum := 65.0
	precip := 0.4
	code := 61
	weatherSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2024-01-05", r.URL.Query().Get("end_date"))
		resp := map[string]any{
			"hourly": domain.HourlySeries{
				Time:               []string{"2024-01-01T00:00", "2024-01-01T01:00", "2024-01-05T00:00"},
				Temperature2M:      []*float64{&temp1, &temp2, &temp1},
				RelativeHumidity2M: []*float64{&hum, &hum, &hum},
				Precipitation:      []*float64{&precip, nil, &precip},
				WeatherCode:        []*int{&code, &code, &code},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer weatherSrv.Close()

	cfg.WeatherBaseURL = weatherSrv.URL
	cfg.WeatherTimeout = 10 * time.Second

	sales := postgres.NewSalesRepository(db, cfg, logger)
	jobs := postgres.NewJobRepository(db, logger)
	weather := openmeteo.NewClient(cfg, metrics, logger)
	backfiller := pipeline.NewBackfiller(weather, sales, cfg, clockwork.NewFakeClock(), logger, metrics)
	annotator := pipeline.NewAnnotator(cfg, logger)
	runner := pipeline.NewRunner(sales, jobs, backfiller, annotator, time.UTC, logger, metrics)

	// Vendor headers, day-first dates, a duplicate corrected row, a blank
	// variation id, and a footer row. 2024-01-01 is a public holiday.
	csv := "Sale Date,Item,SKU,Qty\n" +
		"01/01/2024,Latte,LT-R,2\n" +
		"01/01/2024,Latte,LT-R,5\n" +
		"05/01/2024,Banana Bread,,3\n" +
		",TOTAL,,10\n"

	require.NoError(t, jobs.Create(ctx, "job-e2e", "owner@example.com"))
	require.NoError(t, runner.Run(ctx, "job-e2e", []byte(csv)))

	job, err := jobs.Get(ctx, "job-e2e")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, job.Status)
	assert.True(t, job.ReadyForPrediction)
	assert.Contains(t, job.Log, "Rows after filter: 2")
	assert.Contains(t, job.Log, "Upserted rows: 2")
	assert.Contains(t, job.Log, "Weather updated rows: 2")
	assert.Contains(t, job.Log, "Upload Success! Data inserted and enrichment complete.")

	latte := fetchRow(t, db, "2024-01-01", "Latte", "LT-R")
	assert.Equal(t, 5, latte.Quantity, "last duplicate occurrence wins")
	require.NotNil(t, latte.Temperature)
	assert.Equal(t, 23.0, *latte.Temperature)
	require.NotNil(t, latte.Precipitation)
	assert.Equal(t, 0.4, *latte.Precipitation)
	require.NotNil(t, latte.WeatherCode)
	assert.Equal(t, 61, *latte.WeatherCode)
	require.NotNil(t, latte.IsHoliday)
	assert.Equal(t, int16(1), *latte.IsHoliday, "New Year's Day")
	require.NotNil(t, latte.IsLocalEvent)
	assert.Equal(t, int16(0), *latte.IsLocalEvent)

	bread := fetchRow(t, db, "2024-01-05", "Banana Bread", domain.VariationIDSentinel)
	assert.Equal(t, 3, bread.Quantity)
	require.NotNil(t, bread.IsHoliday)
	assert.Equal(t, int16(0), *bread.IsHoliday)
	require.NotNil(t, bread.Temperature)
	assert.Equal(t, 22.0, *bread.Temperature)
}

func TestRunner_ValidationFailure_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	db := startPostgres(ctx, t)
	cfg := testConfig()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	sales := postgres.NewSalesRepository(db, cfg, logger)
	jobs := postgres.NewJobRepository(db, logger)
	backfiller := pipeline.NewBackfiller(nil, sales, cfg, clockwork.NewFakeClock(), logger, metrics)
	annotator := pipeline.NewAnnotator(cfg, logger)
	runner := pipeline.NewRunner(sales, jobs, backfiller, annotator, time.UTC, logger, metrics)

	require.NoError(t, jobs.Create(ctx, "job-bad", ""))
	require.NoError(t, runner.Run(ctx, "job-bad", []byte("foo,bar\n1,2\n")))

	job, err := jobs.Get(ctx, "job-bad")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.False(t, job.ReadyForPrediction)
	assert.Contains(t, job.Log, "ERROR: missing required column(s)")

	var count int
	require.NoError(t, db.Get(&count, "SELECT count(*) FROM daily_items_sale"))
	assert.Zero(t, count)
}
