package pipeline

import (
	"log/slog"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
)

// Annotator computes the per-date holiday and local event flags.
type Annotator struct {
	calendar *cal.Calendar
	area     string
	logger   *slog.Logger
}

// NewAnnotator builds the flag annotator for the configured holiday region.
// Unknown regions produce an empty calendar, so every date reads as a
// non-holiday rather than failing the job.
func NewAnnotator(cfg *config.Config, logger *slog.Logger) *Annotator {
	c := &cal.Calendar{Name: cfg.HolidayRegion}
	switch cfg.HolidayRegion {
	// The store is in Bondi Junction, so plain "AU" means NSW: state
	// holidays like the October Labour Day affect trade there.
	case "AU", "AU-NSW":
		c.AddHoliday(au.HolidaysNSW...)
	case "AU-ACT":
		c.AddHoliday(au.HolidaysACT...)
	case "AU-VIC":
		c.AddHoliday(au.HolidaysVIC...)
	case "AU-QLD":
		c.AddHoliday(au.HolidaysQLD...)
	default:
		logger.Warn("no holiday definitions for region", "region", cfg.HolidayRegion)
	}
	return &Annotator{calendar: c, area: cfg.EventArea, logger: logger}
}

// HolidayFlags marks each date that is an actual or observed public holiday.
func (a *Annotator) HolidayFlags(dates []time.Time) []domain.DateFlag {
	flags := make([]domain.DateFlag, len(dates))
	for i, d := range dates {
		actual, observed, _ := a.calendar.IsHoliday(d)
		flags[i] = domain.DateFlag{Date: domain.DateOf(d), Set: actual || observed}
	}
	return flags
}

// LocalEventFlags marks dates with known local events near the store. No
// event feed is wired for any area yet, so every date reads false; the column
// is written anyway so downstream consumers see an explicit 0 instead of NULL.
func (a *Annotator) LocalEventFlags(dates []time.Time) []domain.DateFlag {
	flags := make([]domain.DateFlag, len(dates))
	for i, d := range dates {
		flags[i] = domain.DateFlag{Date: domain.DateOf(d), Set: false}
	}
	return flags
}
