package diff

import (
	"radar/internal/observation"
	"radar/internal/table"
)

// View names, also used as table names.
const (
	ViewPriceChanges = "price_changes"
	ViewTopSellers   = "top_sellers"
	ViewStockouts    = "stockouts"
	ViewRestocks     = "restocks"
	ViewNew          = "new"
	ViewDiscontinued = "discontinued"
)

// Views lists every table Tables returns, in order.
var Views = []string{ViewPriceChanges, ViewTopSellers, ViewStockouts, ViewRestocks, ViewNew, ViewDiscontinued}

// Tables renders every view.
func (r *Result) Tables() []*table.Table {
	return []*table.Table{
		r.PriceChangesTable(),
		r.TopSellersTable(),
		r.transitionTable(ViewStockouts, "Stockouts", r.Stockouts),
		r.transitionTable(ViewRestocks, "Restocks", r.Restocks),
		singleSideTable(ViewNew, "New listings", r.New),
		singleSideTable(ViewDiscontinued, "Discontinued listings", r.Discontinued),
	}
}

// Table returns the named view or nil.
func (r *Result) Table(name string) *table.Table {
	for _, t := range r.Tables() {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (r *Result) PriceChangesTable() *table.Table {
	t := table.New(ViewPriceChanges, "Price changes "+r.Label(),
		table.Text("competitor"), table.Text("product_id"), table.Text("title"),
		table.Currency("baseline_price"), table.Currency("current_price"),
		table.Currency("price_delta"), table.Percent("variation_pct"),
		table.Int("current_stock"), table.Text("direction"))
	for _, p := range r.PriceChanges {
		t.Add(p.Key.Competitor, p.Key.ProductID, p.Current.Title,
			p.Baseline.Price, p.Current.Price, p.PriceDelta, p.VariationPct,
			p.Current.Stock, string(p.Direction))
	}
	return t
}

func (r *Result) TopSellersTable() *table.Table {
	t := table.New(ViewTopSellers, "Top sellers "+observation.FormatDay(r.Current),
		table.Text("competitor"), table.Text("product_id"), table.Text("title"), table.Text("brand"),
		table.Int("units_sold"), table.Currency("current_price"), table.Currency("revenue"), table.Int("current_stock"))
	for _, p := range r.TopSellers {
		t.Add(p.Key.Competitor, p.Key.ProductID, p.Current.Title, p.Current.Brand,
			p.Current.UnitsSold, p.Current.Price, p.Current.Revenue(), p.Current.Stock)
	}
	return t
}

func (r *Result) transitionTable(name, title string, pairs []Pair) *table.Table {
	t := table.New(name, title+" "+r.Label(),
		table.Text("competitor"), table.Text("product_id"), table.Text("title"),
		table.Int("baseline_stock"), table.Int("current_stock"),
		table.Currency("current_price"), table.Int("units_sold"))
	for _, p := range pairs {
		t.Add(p.Key.Competitor, p.Key.ProductID, p.Current.Title,
			p.Baseline.Stock, p.Current.Stock, p.Current.Price, p.Current.UnitsSold)
	}
	return t
}

func singleSideTable(name, title string, rows []observation.Observation) *table.Table {
	t := table.New(name, title,
		table.Text("competitor"), table.Text("product_id"), table.Text("title"), table.Text("brand"),
		table.Currency("price"), table.Int("stock"), table.Int("units_sold"))
	for _, o := range rows {
		t.Add(o.Competitor, o.ProductID, o.Title, o.Brand, o.Price, o.Stock, o.UnitsSold)
	}
	return t
}
