// Command validate dry-runs CSV normalization against a POS export without
// touching the database or queue. It prints what an ingestion job would do:
// header mapping outcome, row counts, date span, and duplicate collapses.
//
// Usage:
//
//	go run ./cmd/validate -file export.csv [-tz Australia/Sydney]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cafemetrics/sales-ingest-service/internal/domain"
)

func main() {
	file := flag.String("file", "", "path to the POS CSV export")
	tzName := flag.String("tz", "Australia/Sydney", "store timezone for created_at derived dates")
	verbose := flag.Bool("v", false, "print every normalized record")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*file, *tzName, *verbose); code != 0 {
		os.Exit(code)
	}
}

func run(file, tzName string, verbose bool) int {
	raw, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read file: %v\n", err)
		return 1
	}

	tz, err := time.LoadLocation(tzName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load timezone %q: %v\n", tzName, err)
		return 1
	}

	records, err := domain.Normalize(raw, tz)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("REJECTED: %s\n", verr.Message)
			return 2
		}
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	dates := domain.DistinctDates(records)
	fmt.Printf("OK: %d record(s) after normalization\n", len(records))
	if len(dates) > 0 {
		fmt.Printf("Sale days: %d (%s .. %s)\n", len(dates),
			dates[0].Format(time.DateOnly), dates[len(dates)-1].Format(time.DateOnly))
		fmt.Printf("Weather fetch windows at 31 days: %d\n", len(domain.Windows(dates[0], dates[len(dates)-1], 31)))
	}

	zeroQty := 0
	sentinel := 0
	for _, r := range records {
		if r.Quantity == 0 {
			zeroQty++
		}
		if r.VariationID == domain.VariationIDSentinel {
			sentinel++
		}
	}
	fmt.Printf("Rows with zero quantity: %d\n", zeroQty)
	fmt.Printf("Rows without variation id: %d\n", sentinel)

	if verbose {
		fmt.Println()
		for _, r := range records {
			fmt.Printf("%s  %-30s  %-10s  qty=%d\n",
				r.SaleDate.Format(time.DateOnly), r.ItemName, r.VariationID, r.Quantity)
		}
	}
	return 0
}
