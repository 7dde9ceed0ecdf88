package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
)

// upsertBatchSize keeps multi-row statements well under the driver's
// 65535-parameter limit (6 params per row).
const upsertBatchSize = 1000

// SalesRepository persists sales facts and their enrichment columns.
type SalesRepository struct {
	db     *sqlx.DB
	table  string
	logger *slog.Logger
}

// NewSalesRepository creates a repository bound to the configured sales table.
func NewSalesRepository(db *sqlx.DB, cfg *config.Config, logger *slog.Logger) *SalesRepository {
	return &SalesRepository{
		db:     db,
		table:  qualifiedTable(cfg.TableSchema, cfg.TableName),
		logger: logger,
	}
}

// Upsert writes a normalized batch, inserting new natural keys and updating
// quantity and descriptive columns on existing ones. Weather, holiday, and
// event columns are never touched here so re-uploads keep prior enrichment.
// Returns the number of rows written.
func (r *SalesRepository) Upsert(ctx context.Context, records []domain.SaleRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	total := 0
	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		n, err := r.upsertBatch(ctx, records[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *SalesRepository) upsertBatch(ctx context.Context, records []domain.SaleRecord) (int, error) {
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*6)
	for i, rec := range records {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d::date, $%d, $%d, $%d, $%d, $%d::int)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			rec.SaleDate.Format(time.DateOnly),
			rec.ItemName,
			rec.VariationID,
			rec.ItemVariationName,
			rec.CategoryName,
			rec.Quantity,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (sale_day, item_name, variation_id, item_variation_name, category_name, quantity)
		VALUES %s
		ON CONFLICT (sale_day, item_name, variation_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			item_variation_name = EXCLUDED.item_variation_name,
			category_name = EXCLUDED.category_name
	`, r.table, strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert sales batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("upsert rows affected: %w", err)
	}
	return int(n), nil
}

// UpdateDailyWeather writes daily weather aggregates onto every sales row for
// the matching sale days. Days absent from the map are left untouched.
// Returns the number of distinct sale days updated.
func (r *SalesRepository) UpdateDailyWeather(ctx context.Context, daily map[time.Time]domain.DailyWeather) (int, error) {
	if len(daily) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(daily))
	args := make([]any, 0, len(daily)*5)
	i := 0
	for _, w := range daily {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d::date, $%d::int, $%d::numeric, $%d::numeric, $%d::numeric)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args,
			w.Date.Format(time.DateOnly),
			w.WeatherCodeMode,
			w.TemperatureMean,
			w.HumidityMean,
			w.PrecipitationSum,
		)
		i++
	}

	query := fmt.Sprintf(`
		UPDATE %s AS s SET
			weather_code = v.weather_code,
			temperature = v.temperature,
			humidity = v.humidity,
			precipitation = v.precipitation
		FROM (VALUES %s) AS v (sale_day, weather_code, temperature, humidity, precipitation)
		WHERE s.sale_day = v.sale_day
	`, r.table, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("update daily weather: %w", err)
	}

	days, err := r.countMatchingDays(ctx, keysOf(daily))
	if err != nil {
		return 0, err
	}
	return days, nil
}

// SetHolidayFlags writes the is_holiday flag for each listed sale day.
// Returns the number of distinct sale days updated.
func (r *SalesRepository) SetHolidayFlags(ctx context.Context, flags []domain.DateFlag) (int, error) {
	return r.setFlag(ctx, "is_holiday", flags)
}

// SetLocalEventFlags writes the is_local_event flag for each listed sale day.
// Returns the number of distinct sale days updated.
func (r *SalesRepository) SetLocalEventFlags(ctx context.Context, flags []domain.DateFlag) (int, error) {
	return r.setFlag(ctx, "is_local_event", flags)
}

func (r *SalesRepository) setFlag(ctx context.Context, column string, flags []domain.DateFlag) (int, error) {
	if len(flags) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(flags))
	args := make([]any, 0, len(flags)*2)
	dates := make([]time.Time, 0, len(flags))
	for i, f := range flags {
		base := i * 2
		placeholders = append(placeholders, fmt.Sprintf("($%d::date, $%d::smallint)", base+1, base+2))
		val := 0
		if f.Set {
			val = 1
		}
		args = append(args, f.Date.Format(time.DateOnly), val)
		dates = append(dates, f.Date)
	}

	query := fmt.Sprintf(`
		UPDATE %s AS s SET %s = v.flag
		FROM (VALUES %s) AS v (sale_day, flag)
		WHERE s.sale_day = v.sale_day
	`, r.table, column, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("set %s flags: %w", column, err)
	}
	return r.countMatchingDays(ctx, dates)
}

// countMatchingDays reports how many of the given sale days actually exist in
// the sales table. Progress lines report days touched, not rows.
func (r *SalesRepository) countMatchingDays(ctx context.Context, dates []time.Time) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}

	formatted := make([]any, len(dates))
	for i, d := range dates {
		formatted[i] = d.Format(time.DateOnly)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("count(distinct sale_day)")
	sb.From(r.table)
	sb.Where(sb.In("sale_day", formatted...))

	query, args := sb.Build()
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count matching days: %w", err)
	}
	return n, nil
}

func keysOf(daily map[time.Time]domain.DailyWeather) []time.Time {
	dates := make([]time.Time, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	return dates
}
