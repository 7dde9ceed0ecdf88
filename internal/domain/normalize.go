package domain

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

// ValidationError is a fatal normalization failure: the file cannot be
// ingested at all and nothing is written.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Canonical column names targeted by header alias mapping.
const (
	colSaleDay       = "sale_day"
	colItemName      = "item_name"
	colVariationName = "item_variation_name"
	colCategoryName  = "category_name"
	colVariationID   = "variation_id"
	colQuantity      = "quantity"
)

// headerAliases maps cleaned CSV headers to canonical columns. When two
// headers map to the same canonical column, the rightmost one wins.
var headerAliases = map[string]string{
	"sale_day_manual": colSaleDay,
	"sale_day":        colSaleDay,
	"sale_date":       colSaleDay,
	"order_date":      colSaleDay,
	"date":            colSaleDay,

	"item_name": colItemName,
	"name":      colItemName,
	"item":      colItemName,

	"item_variation_name": colVariationName,
	"item_variation":      colVariationName,
	"variation_name":      colVariationName,
	"variation":           colVariationName,

	"category_name": colCategoryName,
	"category":      colCategoryName,
	"cat_name":      colCategoryName,

	"variation_id":      colVariationID,
	"item_variation_id": colVariationID,
	"sku":               colVariationID,

	"quantity": colQuantity,
	"qty":      colQuantity,
}

// createdAtAliases are creation-timestamp headers usable to derive the sale
// day when no explicit sale-day column maps.
var createdAtAliases = map[string]struct{}{
	"created_at":    {},
	"created":       {},
	"creation_date": {},
}

var requiredColumns = []string{colSaleDay, colItemName, colQuantity}

const (
	maxHeaderSample  = 25
	maxBadDateSample = 5
)

// Normalize parses a raw CSV export into the canonical, validated,
// deduplicated record set ready for upsert. tz is the local timezone used
// when the sale day must be derived from a creation timestamp; a nil tz
// falls back to the timestamp's naive date.
func Normalize(raw []byte, tz *time.Location) ([]SaleRecord, error) {
	rows, err := readCSV(raw)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("unreadable CSV: %v", err)}
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Message: "CSV file has no header row"}
	}

	headers := rows[0]
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		cleaned[i] = cleanHeader(h)
	}

	// Column index per canonical field; rightmost alias wins.
	index := make(map[string]int)
	createdIdx := -1
	for i, h := range cleaned {
		if target, ok := headerAliases[h]; ok {
			index[target] = i
		}
		if _, ok := createdAtAliases[h]; ok {
			createdIdx = i
		}
	}

	_, hasSaleDay := index[colSaleDay]
	deriveFromCreated := !hasSaleDay && createdIdx >= 0

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; ok {
			continue
		}
		if col == colSaleDay && deriveFromCreated {
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		return nil, missingColumnsError(missing, headers)
	}

	type parsedRow struct {
		rec SaleRecord
		key string
	}
	parsed := make([]parsedRow, 0, len(rows)-1)
	var badDates []string
	badDateCount := 0

	for _, row := range rows[1:] {
		saleDate, ok, bad := parseSaleDay(row, index, createdIdx, deriveFromCreated, tz)
		if bad != "" {
			badDateCount++
			if len(badDates) < maxBadDateSample {
				badDates = append(badDates, bad)
			}
			continue
		}
		if !ok {
			continue // footer/summary row without a date
		}

		item := strings.TrimSpace(cell(row, index, colItemName))
		if item == "" {
			continue
		}

		variationID := strings.TrimSpace(cell(row, index, colVariationID))
		if variationID == "" {
			variationID = VariationIDSentinel
		}

		rec := SaleRecord{
			SaleDate:          saleDate,
			ItemName:          item,
			ItemVariationName: optionalCell(row, index, colVariationName),
			CategoryName:      optionalCell(row, index, colCategoryName),
			VariationID:       variationID,
			Quantity:          coerceQuantity(cell(row, index, colQuantity)),
		}
		parsed = append(parsed, parsedRow{
			rec: rec,
			key: saleDate.Format(time.DateOnly) + "\x1f" + item + "\x1f" + variationID,
		})
	}

	if badDateCount > 0 {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"sale date column has %d unparsable value(s) (examples: %s)",
			badDateCount, strings.Join(badDates, ", "),
		)}
	}

	// Deduplicate on the natural key, keeping the last occurrence in file
	// order: POS exports emit corrected rows later in the file.
	lastIdx := make(map[string]int, len(parsed))
	for i, p := range parsed {
		lastIdx[p.key] = i
	}
	records := make([]SaleRecord, 0, len(lastIdx))
	for i, p := range parsed {
		if lastIdx[p.key] == i {
			records = append(records, p.rec)
		}
	}
	return records, nil
}

// parseSaleDay extracts the civil sale date from a row. It returns ok=false
// for rows with no date at all (dropped) and a non-empty bad value for dates
// that are present but unparsable (hard error upstream).
func parseSaleDay(row []string, index map[string]int, createdIdx int, deriveFromCreated bool, tz *time.Location) (t time.Time, ok bool, bad string) {
	if deriveFromCreated {
		v := strings.TrimSpace(cellAt(row, createdIdx))
		if v == "" {
			return time.Time{}, false, ""
		}
		// Timestamps without zone information are read as UTC, then
		// converted to the local civil date. Without a usable timezone the
		// naive date portion is kept.
		ts, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			return time.Time{}, false, v
		}
		if tz != nil {
			ts = ts.In(tz)
		}
		return DateOf(ts), true, ""
	}

	v := strings.TrimSpace(cell(row, index, colSaleDay))
	if v == "" {
		return time.Time{}, false, ""
	}
	parsed, err := parseDayFirst(v)
	if err != nil {
		return time.Time{}, false, v
	}
	return DateOf(parsed), true, ""
}

// parseDayFirst parses a date string resolving ambiguous numeric forms
// day-first: "05/01/2024" is 5 January 2024.
func parseDayFirst(s string) (time.Time, error) {
	return dateparse.ParseAny(s,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
}

// coerceQuantity converts a raw quantity cell to a non-negative integer.
// Blank or non-numeric values become 0; fractional values truncate.
func coerceQuantity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int(v)
}

// cleanHeader canonicalizes a raw CSV header for alias lookup.
func cleanHeader(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\ufeff", "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

func cell(row []string, index map[string]int, col string) string {
	i, ok := index[col]
	if !ok {
		return ""
	}
	return cellAt(row, i)
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// optionalCell returns a trimmed pointer value for columns that may be absent
// from the export entirely; absence maps to nil rather than an empty string.
func optionalCell(row []string, index map[string]int, col string) *string {
	if _, ok := index[col]; !ok {
		return nil
	}
	v := strings.TrimSpace(cell(row, index, col))
	return &v
}

func missingColumnsError(missing []string, headers []string) *ValidationError {
	sample := headers
	if len(sample) > maxHeaderSample {
		sample = sample[:maxHeaderSample]
	}
	trimmed := make([]string, len(sample))
	for i, h := range sample {
		trimmed[i] = strings.TrimSpace(strings.ReplaceAll(h, "\ufeff", ""))
	}
	return &ValidationError{Message: fmt.Sprintf(
		"missing required column(s) after mapping: %s. Available headers (first %d): %s",
		strings.Join(missing, ", "), maxHeaderSample, strings.Join(trimmed, ", "),
	)}
}

// readCSV parses the byte stream with an auto-detected delimiter. Every cell
// stays raw text; type coercion happens per canonical column later.
func readCSV(raw []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = sniffDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sniffDelimiter picks the candidate delimiter occurring most often in the
// first line, defaulting to comma.
func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
