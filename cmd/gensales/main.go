// Command gensales generates a synthetic POS CSV export for local testing
// and demos. The output exercises the normalizer's edge cases: vendor header
// spellings, day-first dates, blank quantities, missing variation ids,
// duplicate rows, and a trailing summary row.
//
// Usage:
//
//	go run ./cmd/gensales -out sales.csv -days 45 -seed 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"
)

var items = []struct {
	name      string
	variation string
	id        string
	category  string
}{
	{name: "Flat White", variation: "Regular", id: "FW-R", category: "Coffee"},
	{name: "Flat White", variation: "Large", id: "FW-L", category: "Coffee"},
	{name: "Latte", variation: "Regular", id: "LT-R", category: "Coffee"},
	{name: "Long Black", variation: "", id: "", category: "Coffee"},
	{name: "Banana Bread", variation: "", id: "BB", category: "Bakery"},
	{name: "Ham & Cheese Croissant", variation: "", id: "HCC", category: "Bakery"},
	{name: "Orange Juice", variation: "Small", id: "OJ-S", category: "Drinks"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output CSV path")
	days := flag.Int("days", 45, "number of sale days to generate, ending yesterday")
	seed := flag.Int64("seed", 1, "random seed for reproducible output")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))
	end := time.Now().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -*days+1)

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	// Vendor-style headers on purpose: the normalizer must map them.
	if err := w.Write([]string{"Sale Date", "Item", "Variation Name", "Category", "SKU", "Qty"}); err != nil {
		return err
	}

	rows := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, item := range items {
			if rng.Float64() < 0.2 {
				continue // not every item sells every day
			}
			qty := strconv.Itoa(1 + rng.Intn(25))
			if rng.Float64() < 0.03 {
				qty = "" // legacy exports leave unmeasured quantities blank
			}
			// Day-first date format, as the real POS emits.
			row := []string{
				d.Format("02/01/2006"),
				item.name,
				item.variation,
				item.category,
				item.id,
				qty,
			}
			if err := w.Write(row); err != nil {
				return err
			}
			rows++

			// Occasional corrected duplicate later in the file.
			if rng.Float64() < 0.02 {
				row[5] = strconv.Itoa(1 + rng.Intn(25))
				if err := w.Write(row); err != nil {
					return err
				}
				rows++
			}
		}
	}

	// Trailing summary row like real exports carry; the normalizer drops it.
	if err := w.Write([]string{"", "TOTAL", "", "", "", strconv.Itoa(rows)}); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	log.Printf("wrote %d rows across %d days to %s", rows, *days, *out)
	return nil
}
