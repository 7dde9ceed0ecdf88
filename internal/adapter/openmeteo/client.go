// Package openmeteo fetches hourly historical weather from the Open-Meteo
// ERA5 archive.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
	"github.com/cafemetrics/sales-ingest-service/internal/observability"
)

const hourlyVariables = "temperature_2m,relative_humidity_2m,precipitation,weathercode"

// Client fetches hourly weather observations for a fixed store location.
type Client struct {
	latitude   float64
	longitude  float64
	timezone   string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client for the configured store coordinates.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		latitude:  cfg.WeatherLat,
		longitude: cfg.WeatherLon,
		timezone:  cfg.WeatherTimezone,
		httpClient: &http.Client{
			Timeout: cfg.WeatherTimeout,
		},
		baseURL: cfg.WeatherBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHourly retrieves the hourly series for the inclusive date range
// [start, end], localized to the configured timezone.
func (c *Client) FetchHourly(ctx context.Context, start, end time.Time) (domain.HourlySeries, error) {
	params := url.Values{
		"latitude":   {strconv.FormatFloat(c.latitude, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(c.longitude, 'f', -1, 64)},
		"start_date": {start.Format(time.DateOnly)},
		"end_date":   {end.Format(time.DateOnly)},
		"hourly":     {hourlyVariables},
		"timezone":   {c.timezone},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.HourlySeries{}, fmt.Errorf("create request: %w", err)
	}

	began := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.HourlySeries{}, fmt.Errorf("weather archive request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.WeatherAPIDuration.Observe(time.Since(began).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.HourlySeries{}, fmt.Errorf("weather archive error: status %d: %s", resp.StatusCode, body)
	}

	var archive response
	if err := json.NewDecoder(resp.Body).Decode(&archive); err != nil {
		return domain.HourlySeries{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("fetched weather window",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"hours", len(archive.Hourly.Time),
	)
	return archive.Hourly, nil
}

// Open-Meteo archive response envelope.
type response struct {
	Hourly domain.HourlySeries `json:"hourly"`
}
