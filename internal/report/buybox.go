package report

import (
	"cmp"
	"context"
	"slices"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
	"radar/internal/table"

	"github.com/shopspring/decimal"
)

// BuyBox is the cheapest offer for one product and the suggested undercut.
type BuyBox struct {
	ProductID      string          `json:"product_id"`
	Title          string          `json:"title"`
	Leader         string          `json:"leader"`
	LeaderPrice    decimal.Decimal `json:"leader_price"`
	RunnerUp       string          `json:"runner_up,omitempty"`
	RunnerUpPrice  decimal.Decimal `json:"runner_up_price"`
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
	Competitors    int             `json:"competitors"`
}

type offer struct {
	competitor string
	price      decimal.Decimal
	title      string
}

// BuyBox finds, per product on date, the lowest positive price. Ties go to the
// lexicographically first competitor. Products with only zero prices are left out.
func (e *Engine) BuyBox(ctx context.Context, date time.Time, competitors ...string) ([]BuyBox, error) {
	offers := map[string]map[string]offer{}
	err := e.each(ctx, store.ForDates(date).WithCompetitors(competitors...), func(o observation.Observation) {
		if !o.Price.IsPositive() {
			return
		}
		byComp := offers[o.ProductID]
		if byComp == nil {
			byComp = map[string]offer{}
			offers[o.ProductID] = byComp
		}
		if prev, ok := byComp[o.Competitor]; ok && prev.price.LessThanOrEqual(o.Price) {
			return
		}
		byComp[o.Competitor] = offer{competitor: o.Competitor, price: o.Price, title: o.Title}
	})
	if err != nil {
		return nil, err
	}
	out := make([]BuyBox, 0, len(offers))
	for product, byComp := range offers {
		ranked := make([]offer, 0, len(byComp))
		for _, o := range byComp {
			ranked = append(ranked, o)
		}
		slices.SortFunc(ranked, func(a, b offer) int {
			if c := a.price.Cmp(b.price); c != 0 {
				return c
			}
			return cmp.Compare(a.competitor, b.competitor)
		})
		lead := ranked[0]
		bb := BuyBox{
			ProductID:      product,
			Title:          lead.title,
			Leader:         lead.competitor,
			LeaderPrice:    lead.price,
			SuggestedPrice: decimal.Max(decimal.Zero, lead.price.Sub(e.opts.Undercut)),
			Competitors:    len(ranked),
		}
		if len(ranked) > 1 {
			bb.RunnerUp = ranked[1].competitor
			bb.RunnerUpPrice = ranked[1].price
		}
		out = append(out, bb)
	}
	slices.SortFunc(out, func(a, b BuyBox) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

func BuyBoxTable(rows []BuyBox) *table.Table {
	t := table.New("buybox", "Buy-box suggestions",
		table.Text("product_id"), table.Text("title"), table.Text("leader"), table.Currency("leader_price"),
		table.Text("runner_up"), table.Currency("runner_up_price"), table.Currency("suggested_price"), table.Int("competitors"))
	for _, r := range rows {
		var runnerUpPrice any
		if r.RunnerUp != "" {
			runnerUpPrice = r.RunnerUpPrice
		}
		t.Add(r.ProductID, r.Title, r.Leader, r.LeaderPrice, r.RunnerUp, runnerUpPrice, r.SuggestedPrice, int64(r.Competitors))
	}
	return t
}
