package observation

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestNormalizeCompetitor(t *testing.T) {
	tests := map[string]string{
		"STORE (1)":            "STORE",
		"store (2)":            "STORE",
		"  Loja  Perfumes  ":   "LOJA PERFUMES",
		"Loja (12) Centro":     "LOJA CENTRO",
		"Loja(3)":              "LOJA",
		"(1(2))":               "",
		"Loja (abc)":           "LOJA (ABC)",
		"Empório Árabe (1)":    "EMPÓRIO ÁRABE",
		"":                     "",
		"MEGA STORE (1) (2)":   "MEGA STORE",
		"Perfumaria ( 1 )":     "PERFUMARIA ( 1 )",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCompetitor(in), in)
	}
}

func TestNormalizeCompetitorIdempotent(t *testing.T) {
	inputs := []string{
		"STORE (1)", "a (1) b (2) c", "((1))", "(1(2))", "x(1)(2)y", "  (7)  ", "Loja\t(3)\n",
		"ß store (9)", "Perfumaria ( 1 )", "(((3)))",
	}
	for _, in := range inputs {
		once := NormalizeCompetitor(in)
		assert.Equal(t, once, NormalizeCompetitor(once), in)
		assert.False(t, disambiguatorRe.MatchString(once), in)
	}
}

func TestNormalizeProductID(t *testing.T) {
	assert.Equal(t, "7891234567890", NormalizeProductID("7891234567890.0"))
	assert.Equal(t, "7891234567890", NormalizeProductID(" 7891234567890 "))
	assert.Equal(t, "7891234567890", NormalizeProductID("7.89123456789E+12"))
	assert.Equal(t, "ABC-1", NormalizeProductID("ABC-1"))
	assert.Equal(t, "", NormalizeProductID("  "))
}

func TestNormalizeCleanRow(t *testing.T) {
	res := Normalize(RawRow{
		Line:      2,
		Price:     "129,90",
		Stock:     "12",
		UnitsSold: "40.0",
		Title:     " Perfume Importado 100ml ",
		ProductID: "7891234567890.0",
		Brand:     " Lattafa ",
		SKU:       "SKU-9",
	}, day.Add(15*time.Hour), "Loja Perfumes (1)")

	require.True(t, res.Clean(), res.Warnings)
	obs := res.Observation
	assert.Equal(t, day, obs.Date)
	assert.Equal(t, "LOJA PERFUMES", obs.Competitor)
	assert.Equal(t, "7891234567890", obs.ProductID)
	assert.Equal(t, "Perfume Importado 100ml", obs.Title)
	assert.Equal(t, "Lattafa", obs.Brand)
	assert.True(t, decimal.RequireFromString("129.90").Equal(obs.Price))
	assert.EqualValues(t, 12, obs.Stock)
	assert.EqualValues(t, 40, obs.UnitsSold)
	assert.Equal(t, "SKU-9", obs.SKU)
	assert.NoError(t, obs.Validate())
}

func TestNormalizeDefaultsAndWarnings(t *testing.T) {
	res := Normalize(RawRow{
		Line:      7,
		Price:     "consulte",
		Stock:     "-4",
		UnitsSold: "",
		ProductID: "123",
	}, day, "X")

	obs := res.Observation
	assert.True(t, obs.Price.IsZero())
	assert.EqualValues(t, 0, obs.Stock)
	assert.EqualValues(t, 0, obs.UnitsSold)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, Warning{Row: 7, Field: FieldPrice, Raw: "consulte", Reason: "unparseable, defaulted to 0"}, res.Warnings[0])
	assert.Equal(t, FieldStock, res.Warnings[1].Field)
	assert.Contains(t, res.Warnings[1].Reason, "clamped")
}

func TestNormalizeInvariants(t *testing.T) {
	rows := []RawRow{
		{Price: "-1", Stock: "-1", UnitsSold: "-1", Title: strings.Repeat("x", 500), ProductID: "1"},
		{Price: "abc", Stock: "1e3", UnitsSold: "2,5", Title: strings.Repeat("ç", 201), ProductID: "2"},
		{Price: "R$ 10,00", Stock: "", UnitsSold: "n/a", ProductID: "3"},
	}
	for _, row := range rows {
		obs := Normalize(row, day, "Comp (1)").Observation
		assert.False(t, obs.Price.IsNegative())
		assert.GreaterOrEqual(t, obs.Stock, int64(0))
		assert.GreaterOrEqual(t, obs.UnitsSold, int64(0))
		assert.LessOrEqual(t, utf8.RuneCountInString(obs.Title), DefaultTitleMax)
		assert.Equal(t, "COMP", obs.Competitor)
	}
}

func TestNormalizeProductIDHugeExponent(t *testing.T) {
	done := make(chan string, 1)
	go func() { done <- NormalizeProductID("1E99999999") }()
	select {
	case got := <-done:
		assert.Equal(t, "1E99999999", got)
	case <-time.After(2 * time.Second):
		t.Fatal("NormalizeProductID did not return")
	}
	assert.Equal(t, "1"+strings.Repeat("0", 63), NormalizeProductID("1E63"))
	assert.Equal(t, "1E64", NormalizeProductID("1E64"))
}

func TestNormalizeOutOfRangeCells(t *testing.T) {
	done := make(chan Result, 1)
	go func() {
		done <- Normalize(RawRow{
			Line:      4,
			ProductID: "1",
			Price:     "1E99999999",
			Stock:     "1E99999999",
			UnitsSold: "99999999999999999999",
		}, day, "X")
	}()
	var res Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Normalize did not return")
	}
	obs := res.Observation
	assert.True(t, obs.Price.IsZero())
	assert.EqualValues(t, 0, obs.Stock)
	assert.EqualValues(t, 0, obs.UnitsSold)
	require.Len(t, res.Warnings, 3)
	for _, w := range res.Warnings {
		assert.Equal(t, "out of range, defaulted to 0", w.Reason, w.Field)
	}

	res = Normalize(RawRow{ProductID: "1", Stock: "18446744073709551617"}, day, "X")
	assert.EqualValues(t, 0, res.Observation.Stock)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, FieldStock, res.Warnings[0].Field)
}

func TestNormalizeMissingProductIDWarns(t *testing.T) {
	res := Normalize(RawRow{Line: 3, Price: "1"}, day, "X")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, FieldProductID, res.Warnings[0].Field)
	assert.Error(t, res.Observation.Validate())
}

func TestParseDay(t *testing.T) {
	for _, in := range []string{"2026-03-14", "2026-03-14T10:00:00Z", "14/03/2026", "2026-03-14 23:59:00"} {
		got, err := ParseDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, day, got, in)
	}
	_, err := ParseDay("yesterday")
	assert.Error(t, err)
	_, err = ParseDay("")
	assert.Error(t, err)
}

func TestKeyOrderingAndRevenue(t *testing.T) {
	a := Key{ProductID: "2", Competitor: "A"}
	b := Key{ProductID: "1", Competitor: "B"}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	obs := Observation{Price: decimal.RequireFromString("12.50"), UnitsSold: 4}
	assert.Equal(t, "50", obs.Revenue().String())
}
