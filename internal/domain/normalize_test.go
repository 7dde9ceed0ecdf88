package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalize_CanonicalHeaders(t *testing.T) {
	csv := strings.Join([]string{
		"sale_day,item_name,item_variation_name,category_name,variation_id,quantity",
		"2024-01-05,Flat White,Regular,Coffee,V1,3",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, day(2024, time.January, 5), r.SaleDate)
	assert.Equal(t, "Flat White", r.ItemName)
	require.NotNil(t, r.ItemVariationName)
	assert.Equal(t, "Regular", *r.ItemVariationName)
	require.NotNil(t, r.CategoryName)
	assert.Equal(t, "Coffee", *r.CategoryName)
	assert.Equal(t, "V1", r.VariationID)
	assert.Equal(t, 3, r.Quantity)
}

func TestNormalize_HeaderAliases(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "vendor spellings", header: "Sale Date,Item,SKU,Qty"},
		{name: "upper case", header: "ORDER_DATE,NAME,VARIATION_ID,QUANTITY"},
		{name: "bom and padding", header: "\ufeff Date , item_name , sku , quantity "},
		{name: "collapsed inner spaces", header: "Sale  Date,Item  Name,SKU,Qty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := tt.header + "\n2024-01-05,Latte,V9,2\n"
			records, err := Normalize([]byte(csv), nil)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, day(2024, time.January, 5), records[0].SaleDate)
			assert.Equal(t, "Latte", records[0].ItemName)
			assert.Equal(t, "V9", records[0].VariationID)
			assert.Equal(t, 2, records[0].Quantity)
		})
	}
}

func TestNormalize_RightmostAliasWins(t *testing.T) {
	csv := strings.Join([]string{
		"sale_date,order_date,item_name,quantity",
		"2024-01-01,2024-02-02,Latte,1",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, day(2024, time.February, 2), records[0].SaleDate)
}

func TestNormalize_SniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{name: "semicolon", csv: "sale_day;item_name;quantity\n2024-01-05;Latte;2\n"},
		{name: "tab", csv: "sale_day\titem_name\tquantity\n2024-01-05\tLatte\t2\n"},
		{name: "pipe", csv: "sale_day|item_name|quantity\n2024-01-05|Latte|2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Normalize([]byte(tt.csv), nil)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "Latte", records[0].ItemName)
			assert.Equal(t, 2, records[0].Quantity)
		})
	}
}

func TestNormalize_MissingRequiredColumns(t *testing.T) {
	csv := "foo,bar,baz\n1,2,3\n"

	_, err := Normalize([]byte(csv), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "sale_day")
	assert.Contains(t, verr.Message, "item_name")
	assert.Contains(t, verr.Message, "quantity")
	assert.Contains(t, verr.Message, "foo, bar, baz")
}

func TestNormalize_DayFirstDates(t *testing.T) {
	csv := strings.Join([]string{
		"sale_day,item_name,quantity",
		"05/01/2024,Latte,1",
		"13/02/2024,Latte,1",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, day(2024, time.January, 5), records[0].SaleDate)
	assert.Equal(t, day(2024, time.February, 13), records[1].SaleDate)
}

func TestNormalize_UnparsableDatesFail(t *testing.T) {
	rows := []string{"sale_day,item_name,quantity"}
	for i := 0; i < 7; i++ {
		rows = append(rows, "not-a-date,Latte,1")
	}

	_, err := Normalize([]byte(strings.Join(rows, "\n")), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "7 unparsable")
	// Sample is capped; the message must not echo all seven.
	assert.Equal(t, 5, strings.Count(verr.Message, "not-a-date"))
}

func TestNormalize_DropsFooterRows(t *testing.T) {
	csv := strings.Join([]string{
		"sale_day,item_name,quantity",
		"2024-01-05,Latte,2",
		",TOTAL,99",
		"2024-01-06,,4",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Latte", records[0].ItemName)
}

func TestNormalize_QuantityCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "integer", raw: "3", want: 3},
		{name: "fractional truncates", raw: "2.8", want: 2},
		{name: "blank", raw: "", want: 0},
		{name: "non numeric", raw: "two", want: 0},
		{name: "negative clamps", raw: "-4", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := "sale_day,item_name,quantity\n2024-01-05,Latte," + tt.raw + "\n"
			records, err := Normalize([]byte(csv), nil)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].Quantity)
		})
	}
}

func TestNormalize_VariationIDSentinel(t *testing.T) {
	csv := strings.Join([]string{
		"sale_day,item_name,variation_id,quantity",
		"2024-01-05,Latte,,2",
		"2024-01-05,Mocha,V7,1",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, VariationIDSentinel, records[0].VariationID)
	assert.Equal(t, "V7", records[1].VariationID)
}

func TestNormalize_LastOccurrenceWins(t *testing.T) {
	csv := strings.Join([]string{
		"sale_day,item_name,variation_id,quantity",
		"2024-01-05,Latte,V1,2",
		"2024-01-05,Mocha,V2,9",
		"05/01/2024,Latte,V1,5",
	}, "\n")

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Order follows the surviving occurrences, so the corrected Latte row
	// moves after Mocha.
	assert.Equal(t, "Mocha", records[0].ItemName)
	assert.Equal(t, "Latte", records[1].ItemName)
	assert.Equal(t, 5, records[1].Quantity)
}

func TestNormalize_DerivesSaleDayFromCreatedAt(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	// 2024-01-05T20:00 UTC is already 2024-01-06 in Sydney.
	csv := strings.Join([]string{
		"created_at,item_name,quantity",
		"2024-01-05T20:00:00Z,Latte,2",
	}, "\n")

	records, err := Normalize([]byte(csv), sydney)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, day(2024, time.January, 6), records[0].SaleDate)

	records, err = Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, day(2024, time.January, 5), records[0].SaleDate)
}

func TestNormalize_ExplicitSaleDayBeatsCreatedAt(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	csv := strings.Join([]string{
		"sale_day,created_at,item_name,quantity",
		"2024-01-05,2024-03-01T20:00:00Z,Latte,2",
	}, "\n")

	records, err := Normalize([]byte(csv), sydney)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, day(2024, time.January, 5), records[0].SaleDate)
}

func TestNormalize_EmptyInput(t *testing.T) {
	_, err := Normalize(nil, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = Normalize([]byte("sale_day,item_name,quantity\n"), nil)
	require.NoError(t, err)
}

func TestNormalize_MissingOptionalColumnsAreNil(t *testing.T) {
	csv := "sale_day,item_name,quantity\n2024-01-05,Latte,2\n"

	records, err := Normalize([]byte(csv), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].ItemVariationName)
	assert.Nil(t, records[0].CategoryName)
}

func TestDistinctDates(t *testing.T) {
	records := []SaleRecord{
		{SaleDate: day(2024, time.January, 7)},
		{SaleDate: day(2024, time.January, 5)},
		{SaleDate: day(2024, time.January, 7)},
		{SaleDate: day(2024, time.January, 6)},
	}

	dates := DistinctDates(records)
	require.Equal(t, []time.Time{
		day(2024, time.January, 5),
		day(2024, time.January, 6),
		day(2024, time.January, 7),
	}, dates)
}
