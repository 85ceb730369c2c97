package visual

import (
	"testing"
	"time"

	"radar/internal/diff"
	"radar/internal/observation"
	"radar/internal/policy"
	"radar/internal/report"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := observation.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBrandRevenueLimitsBars(t *testing.T) {
	rows := []report.BrandRevenue{
		{Brand: "Natura", Revenue: decimal.RequireFromString("500")},
		{Brand: "Boticario", Revenue: decimal.RequireFromString("300")},
		{Brand: "Avon", Revenue: decimal.RequireFromString("100")},
	}
	c, err := BrandRevenue(rows, 2)
	require.NoError(t, err)
	assert.Equal(t, ChartRevenueBrands, c.Name)
	html := string(c.HTML)
	assert.Contains(t, html, "Natura")
	assert.Contains(t, html, "Boticario")
	assert.NotContains(t, html, "Avon")
}

func TestCompetitorRevenueSeries(t *testing.T) {
	rows := []report.CompetitorRevenue{
		{Date: day("2024-01-02"), Competitor: "loja b", Revenue: decimal.NewFromInt(20)},
		{Date: day("2024-01-01"), Competitor: "loja a", Revenue: decimal.NewFromInt(10)},
		{Date: day("2024-01-02"), Competitor: "loja a", Revenue: decimal.NewFromInt(15)},
	}
	c, err := CompetitorRevenue(rows)
	require.NoError(t, err)
	html := string(c.HTML)
	assert.Contains(t, html, "loja a")
	assert.Contains(t, html, "loja b")
	assert.Contains(t, html, "2024-01-01")
	assert.Contains(t, html, "2 competitors, 2 dates")
}

func TestPriceChangesColorsByDirection(t *testing.T) {
	res := &diff.Result{
		Current:  day("2024-01-02"),
		Baseline: day("2024-01-01"),
		PriceChanges: []diff.Pair{
			{Key: observation.Key{ProductID: "A", Competitor: "x"}, VariationPct: decimal.NewFromInt(10), Direction: diff.Increased},
			{Key: observation.Key{ProductID: "B", Competitor: "x"}, VariationPct: decimal.NewFromInt(-5), Direction: diff.Decreased},
		},
	}
	c, err := PriceChanges(res, 0)
	require.NoError(t, err)
	html := string(c.HTML)
	assert.Contains(t, html, "A@x")
	assert.Contains(t, html, colorUp)
	assert.Contains(t, html, colorDown)
}

func TestPriceHistoryIncludesSMA(t *testing.T) {
	pts := []report.PricePoint{
		{Date: day("2024-01-01"), Price: decimal.NewFromInt(10)},
		{Date: day("2024-01-02"), Price: decimal.NewFromInt(12), SMA: decimal.NewNullDecimal(decimal.NewFromInt(11))},
	}
	c, err := PriceHistory("SKU1", pts)
	require.NoError(t, err)
	html := string(c.HTML)
	assert.Contains(t, html, "Price history SKU1")
	assert.Contains(t, html, "sma")
}

func TestReorderClassesCountsEveryClass(t *testing.T) {
	rows := []report.Reorder{{Class: policy.ClassUrgent}, {Class: policy.ClassUrgent}, {Class: policy.ClassExcess}}
	c, err := ReorderClasses(rows)
	require.NoError(t, err)
	html := string(c.HTML)
	for _, cls := range []policy.Class{policy.ClassUrgent, policy.ClassSoon, policy.ClassStable, policy.ClassExcess} {
		assert.Contains(t, html, string(cls))
	}
}
