package domain

import (
	"sort"
	"time"
)

// SaleRecord is one canonical sales fact, unique per
// (sale date, item name, variation id) within a batch and within storage.
type SaleRecord struct {
	SaleDate          time.Time `db:"sale_day" json:"sale_date"`
	ItemName          string    `db:"item_name" json:"item_name"`
	ItemVariationName *string   `db:"item_variation_name" json:"item_variation_name,omitempty"`
	CategoryName      *string   `db:"category_name" json:"category_name,omitempty"`
	VariationID       string    `db:"variation_id" json:"variation_id"`
	Quantity          int       `db:"quantity" json:"quantity"`
}

// VariationIDSentinel stands in for a missing variation id so the natural key
// is always well-defined.
const VariationIDSentinel = "NA"

// DateFlag pairs a sale date with a boolean enrichment flag value.
type DateFlag struct {
	Date time.Time
	Set  bool
}

// DateOf truncates a timestamp to its civil date, represented as midnight UTC.
// All sale dates in this package use this representation.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DistinctDates returns the sorted set of sale dates present in a batch.
func DistinctDates(records []SaleRecord) []time.Time {
	seen := make(map[time.Time]struct{}, len(records))
	for _, r := range records {
		seen[r.SaleDate] = struct{}{}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
