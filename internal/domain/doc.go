// Package domain models merchant point-of-sale daily sales data and its
// weather/holiday enrichment.
//
// # Data Source
//
// Sales arrive as raw CSV exports from the merchant's point-of-sale system.
// Export formats vary by POS vendor and report version: delimiters differ
// (comma, semicolon, tab, pipe), header spellings differ ("Sale Date",
// "order_date", "DATE"), and older exports carry blank quantity cells and
// trailing summary rows. The normalizer maps all of them onto one canonical
// record shape before anything touches storage.
//
// # Header Conventions
//
// Headers are NFKC-normalized, stripped of byte-order marks and surrounding
// whitespace, inner whitespace runs collapsed, case-folded, and spaces
// replaced with underscores before alias lookup:
//
//	" Sale  Date " (leading U+FEFF stripped) → "sale_date" → canonical sale day
//
// The alias table ([headerAliases]) maps the known spellings to six canonical
// columns; unmapped headers are dropped. Sale day, item name, and quantity are
// required after mapping. When no sale-day column maps but a creation
// timestamp is present, the sale day is derived by converting that timestamp
// to the configured local timezone.
//
// # Value Conventions
//
// Dates:
//
//	Day-first ambiguous formats are accepted: "05/01/2024" is 5 January.
//	Unparsable non-empty dates are a hard validation error (silently
//	mis-parsing locales would corrupt history); rows with an empty date or
//	item name are dropped, which is expected for export footer rows.
//
// Quantity:
//
//	Numeric coercion; blank or non-numeric cells become 0 so legacy exports
//	with unmeasured quantities still load. Negative values clamp to 0.
//
// Variation id:
//
//	Missing or blank ids map to the sentinel "NA" so the natural key
//	(sale day, item name, variation id) is always well-defined.
//
// Duplicate natural keys within one file keep only the last occurrence, in
// file order, mirroring how POS systems emit corrected rows later in the
// export.
//
// # Weather Aggregation
//
// Hourly observations from the Open-Meteo ERA5 archive are reduced to one
// row per civil day: temperature and relative humidity by arithmetic mean,
// precipitation by sum, and the categorical weather code by statistical mode
// (ties resolved toward the smallest code). Aggregates are rounded to two
// decimals; a day with no observations for a field carries a nil aggregate,
// never a zero.
package domain
