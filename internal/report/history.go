package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
	"radar/internal/table"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// PricePoint is one date of a product's price series.
type PricePoint struct {
	Date       time.Time           `json:"date"`
	Price      decimal.Decimal     `json:"price"`
	Competitor string              `json:"competitor"`
	SMA        decimal.NullDecimal `json:"sma"`
}

// PriceHistory returns one price per date for productID. With a competitor
// the series follows that competitor; without one it follows the lowest
// positive price of the day. SMA is set once smaWindow points exist.
func (e *Engine) PriceHistory(ctx context.Context, productID, competitor string, smaWindow int) ([]PricePoint, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("price history requires a product id")
	}
	if smaWindow <= 0 {
		smaWindow = e.opts.SMAWindow
	}
	f := store.Filter{ProductIDs: []string{productID}}
	if competitor != "" {
		f = f.WithCompetitors(competitor)
	}
	byDay := map[time.Time]PricePoint{}
	err := e.each(ctx, f, func(o observation.Observation) {
		day := observation.Day(o.Date)
		prev, seen := byDay[day]
		if competitor == "" && !o.Price.IsPositive() {
			return
		}
		if seen && (prev.Price.LessThan(o.Price) || (prev.Price.Equal(o.Price) && prev.Competitor < o.Competitor)) {
			return
		}
		byDay[day] = PricePoint{Date: day, Price: o.Price, Competitor: o.Competitor}
	})
	if err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b PricePoint) int { return a.Date.Compare(b.Date) })

	if smaWindow > 1 && len(points) >= smaWindow {
		closes := make([]float64, len(points))
		for i, p := range points {
			closes[i] = p.Price.InexactFloat64()
		}
		sma := talib.Sma(closes, smaWindow)
		for i := smaWindow - 1; i < len(points) && i < len(sma); i++ {
			points[i].SMA = decimal.NewNullDecimal(decimal.NewFromFloat(sma[i]).Round(2))
		}
	} else if smaWindow == 1 {
		for i := range points {
			points[i].SMA = decimal.NewNullDecimal(points[i].Price)
		}
	}
	return points, nil
}

func PriceHistoryTable(productID string, points []PricePoint) *table.Table {
	t := table.New("price_history", "Price history "+productID,
		table.Date("date"), table.Text("competitor"), table.Currency("price"), table.Currency("sma"))
	for _, p := range points {
		var sma any
		if p.SMA.Valid {
			sma = p.SMA.Decimal
		}
		t.Add(p.Date, p.Competitor, p.Price, sma)
	}
	return t
}
