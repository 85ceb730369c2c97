package report

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
	"radar/internal/table"

	"github.com/shopspring/decimal"
)

type BrandRevenue struct {
	Brand    string          `json:"brand"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int64           `json:"units_sold"`
	Products int             `json:"products"`
	SharePct decimal.Decimal `json:"share_pct"`
}

// RevenueByBrand sums price × units per brand, largest first.
func (e *Engine) RevenueByBrand(ctx context.Context, f store.Filter) ([]BrandRevenue, error) {
	type acc struct {
		revenue  decimal.Decimal
		units    int64
		products map[string]struct{}
	}
	groups := map[string]*acc{}
	total := decimal.Zero
	err := e.each(ctx, f, func(o observation.Observation) {
		brand := strings.TrimSpace(o.Brand)
		if brand == "" {
			brand = NoBrand
		}
		a := groups[brand]
		if a == nil {
			a = &acc{products: map[string]struct{}{}}
			groups[brand] = a
		}
		rev := o.Revenue()
		a.revenue = a.revenue.Add(rev)
		a.units += o.UnitsSold
		a.products[o.ProductID] = struct{}{}
		total = total.Add(rev)
	})
	if err != nil {
		return nil, err
	}
	out := make([]BrandRevenue, 0, len(groups))
	for brand, a := range groups {
		share := decimal.Zero
		if total.IsPositive() {
			share = a.revenue.Div(total).Mul(decimal.NewFromInt(100))
		}
		out = append(out, BrandRevenue{Brand: brand, Revenue: a.revenue, Units: a.units, Products: len(a.products), SharePct: share})
	}
	slices.SortFunc(out, func(a, b BrandRevenue) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Brand, b.Brand)
	})
	return out, nil
}

func BrandRevenueTable(rows []BrandRevenue) *table.Table {
	t := table.New("revenue_by_brand", "Estimated revenue by brand",
		table.Text("brand"), table.Currency("revenue"), table.Int("units_sold"), table.Int("products"), table.Percent("share_pct"))
	for _, r := range rows {
		t.Add(r.Brand, r.Revenue, r.Units, int64(r.Products), r.SharePct)
	}
	return t
}

type CompetitorRevenue struct {
	Date       time.Time       `json:"date"`
	Competitor string          `json:"competitor"`
	Revenue    decimal.Decimal `json:"revenue"`
	Units      int64           `json:"units_sold"`
}

// RevenueByCompetitor sums price × units per (date, competitor) as a time series.
func (e *Engine) RevenueByCompetitor(ctx context.Context, f store.Filter) ([]CompetitorRevenue, error) {
	type key struct {
		day        string
		competitor string
	}
	groups := map[key]*CompetitorRevenue{}
	err := e.each(ctx, f, func(o observation.Observation) {
		k := key{observation.FormatDay(o.Date), o.Competitor}
		g := groups[k]
		if g == nil {
			g = &CompetitorRevenue{Date: observation.Day(o.Date), Competitor: o.Competitor}
			groups[k] = g
		}
		g.Revenue = g.Revenue.Add(o.Revenue())
		g.Units += o.UnitsSold
	})
	if err != nil {
		return nil, err
	}
	out := make([]CompetitorRevenue, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b CompetitorRevenue) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Competitor, b.Competitor)
	})
	return out, nil
}

func CompetitorRevenueTable(rows []CompetitorRevenue) *table.Table {
	t := table.New("revenue_by_competitor", "Estimated revenue by competitor",
		table.Date("date"), table.Text("competitor"), table.Currency("revenue"), table.Int("units_sold"))
	for _, r := range rows {
		t.Add(r.Date, r.Competitor, r.Revenue, r.Units)
	}
	return t
}
