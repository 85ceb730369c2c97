package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"radar/internal/observation"
	"radar/internal/policy"
	"radar/internal/store"
	"radar/internal/table"

	"github.com/shopspring/decimal"
)

// Reorder is the stock-cover signal for one product across competitors.
type Reorder struct {
	ProductID   string          `json:"product_id"`
	Title       string          `json:"title"`
	Brand       string          `json:"brand"`
	TotalUnits  int64           `json:"total_units_sold"`
	Dates       int             `json:"dates"`
	Velocity    decimal.Decimal `json:"velocity"`
	TotalStock  int64           `json:"total_stock"`
	DaysOfCover decimal.Decimal `json:"days_of_cover"`
	Class       policy.Class    `json:"class"`
}

// Reorder classifies every product seen in the window (asOf-windowDays, asOf].
// windowDays <= 0 uses the configured window.
func (e *Engine) Reorder(ctx context.Context, asOf time.Time, windowDays int) ([]Reorder, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("reorder requires an as-of date")
	}
	if windowDays <= 0 {
		windowDays = e.opts.ReorderWindowDays
	}
	asOf = observation.Day(asOf)
	f := store.Filter{From: asOf.AddDate(0, 0, -windowDays+1), To: asOf}

	type acc struct {
		latest     observation.Observation
		latestDay  time.Time
		units      int64
		dates      map[time.Time]struct{}
		stockByDay map[time.Time]int64
	}
	products := map[string]*acc{}
	err := e.each(ctx, f, func(o observation.Observation) {
		a := products[o.ProductID]
		if a == nil {
			a = &acc{dates: map[time.Time]struct{}{}, stockByDay: map[time.Time]int64{}}
			products[o.ProductID] = a
		}
		day := observation.Day(o.Date)
		a.units += o.UnitsSold
		a.dates[day] = struct{}{}
		a.stockByDay[day] += o.Stock
		if day.After(a.latestDay) || (day.Equal(a.latestDay) && o.Competitor < a.latest.Competitor) {
			a.latestDay = day
			a.latest = o
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]Reorder, 0, len(products))
	for id, a := range products {
		r := Reorder{
			ProductID:  id,
			Title:      a.latest.Title,
			Brand:      a.latest.Brand,
			TotalUnits: a.units,
			Dates:      len(a.dates),
			TotalStock: a.stockByDay[a.latestDay],
		}
		r.Velocity = decimal.NewFromInt(r.TotalUnits).Div(decimal.NewFromInt(int64(r.Dates)))
		if r.Velocity.IsPositive() {
			r.DaysOfCover = decimal.NewFromInt(r.TotalStock).Div(r.Velocity).Round(2)
		} else {
			r.DaysOfCover = decimal.NewFromInt(NoMovementDays)
		}
		r.Velocity = r.Velocity.Round(4)
		r.Class = e.thresholds.Thresholds(r.Brand).Classify(r.DaysOfCover)
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Reorder) int {
		if c := a.DaysOfCover.Cmp(b.DaysOfCover); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}

func ReorderTable(rows []Reorder) *table.Table {
	t := table.New("reorder", "Reorder urgency",
		table.Text("product_id"), table.Text("title"), table.Text("brand"),
		table.Int("total_units_sold"), table.Int("dates"), table.Currency("velocity"),
		table.Int("total_stock"), table.Currency("days_of_cover"), table.Text("class"))
	for _, r := range rows {
		t.Add(r.ProductID, r.Title, r.Brand, r.TotalUnits, int64(r.Dates), r.Velocity, r.TotalStock, r.DaysOfCover, string(r.Class))
	}
	return t
}
