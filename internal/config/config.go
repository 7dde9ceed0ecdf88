package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// Both the API and the worker load the same config; each uses the subset it
// needs.
type Config struct {
	DatabaseURL     string
	KafkaBrokers    []string
	KafkaJobsTopic  string
	KafkaGroupID    string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Weather backfill configuration.
	WeatherLat       float64
	WeatherLon       float64
	WeatherTimezone  string
	WeatherChunkDays int
	WeatherTimeout   time.Duration
	WeatherPacing    time.Duration
	WeatherBaseURL   string

	// Sales-fact table location.
	TableSchema string
	TableName   string

	// Enrichment flags.
	HolidayRegion string
	EventArea     string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parseDuration("WEATHER_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	weatherPacing, err := parsePacing()
	if err != nil {
		return nil, err
	}
	lat, err := parseFloat("WEATHER_LAT", "-33.8908")
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("WEATHER_LON", "151.2495")
	if err != nil {
		return nil, err
	}
	chunkDays, err := parsePositiveInt("WEATHER_CHUNK_DAYS", "31")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		KafkaBrokers:    parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaJobsTopic:  envOrDefault("KAFKA_JOBS_TOPIC", "sales-ingest-jobs"),
		KafkaGroupID:    envOrDefault("KAFKA_GROUP_ID", "sales-ingest-worker"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WeatherLat:       lat,
		WeatherLon:       lon,
		WeatherTimezone:  envOrDefault("WEATHER_TZ", "Australia/Sydney"),
		WeatherChunkDays: chunkDays,
		WeatherTimeout:   weatherTimeout,
		WeatherPacing:    weatherPacing,
		WeatherBaseURL:   envOrDefault("WEATHER_BASE_URL", "https://archive-api.open-meteo.com/v1/era5"),

		TableSchema: envOrDefault("PGSCHEMA", "public"),
		TableName:   envOrDefault("PGTABLE", "daily_items_sale"),

		HolidayRegion: envOrDefault("HOLIDAY_REGION", "AU"),
		EventArea:     envOrDefault("EVENT_AREA", "Bondi Junction"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaJobsTopic == "" {
		return nil, errors.New("KAFKA_JOBS_TOPIC is required")
	}
	if cfg.WeatherTimezone == "" {
		return nil, errors.New("WEATHER_TZ is required")
	}

	return cfg, nil
}

// Location resolves the configured timezone. Callers that can tolerate a
// missing tz database entry should handle the error themselves.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.WeatherTimezone)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parsePacing allows zero (pacing disabled), unlike parseDuration.
func parsePacing() (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault("WEATHER_PACING", "400ms"))
	if err != nil || d < 0 {
		return 0, errors.New("invalid WEATHER_PACING")
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(envOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
