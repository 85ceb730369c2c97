// Package visual renders report data as echarts pages and PNG snapshots.
package visual

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"radar/internal/diff"
	"radar/internal/observation"
	"radar/internal/policy"
	"radar/internal/report"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#0f172a"
	colorTextPrimary   = "#e2e8f0"
	colorTextSecondary = "#94a3b8"
	colorUp            = "#34d399"
	colorDown          = "#f87171"
	colorAccent        = "#60a5fa"
	colorSMA           = "#fbbf24"

	chartWidthPx  = 1280
	chartHeightPx = 640

	// DefaultBarLimit caps bars per chart.
	DefaultBarLimit = 20
)

// Chart names served over HTTP.
const (
	ChartRevenueBrands      = "revenue_brands"
	ChartRevenueCompetitors = "revenue_competitors"
	ChartPriceChanges       = "price_changes"
	ChartPriceHistory       = "price_history"
	ChartReorder            = "reorder"
)

// Chart is a rendered echarts page.
type Chart struct {
	Name   string
	Title  string
	HTML   []byte
	Width  int
	Height int
}

type renderer interface {
	Render(w io.Writer) error
}

func render(name, title string, r renderer) (Chart, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return Chart{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Chart{Name: name, Title: title, HTML: buf.Bytes(), Width: chartWidthPx, Height: chartHeightPx}, nil
}

func globalOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom", TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	}
}

// BrandRevenue plots the largest brands by estimated revenue.
func BrandRevenue(rows []report.BrandRevenue, limit int) (Chart, error) {
	if limit <= 0 {
		limit = DefaultBarLimit
	}
	rows = rows[:min(limit, len(rows))]
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Revenue by brand", fmt.Sprintf("top %d", len(rows)))...)
	names := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))
	for i, r := range rows {
		names[i] = r.Brand
		data[i] = opts.BarData{Name: r.Brand, Value: r.Revenue.Round(2).InexactFloat64()}
	}
	bar.SetXAxis(names).AddSeries("revenue", data, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorAccent}))
	return render(ChartRevenueBrands, "Revenue by brand", bar)
}

// CompetitorRevenue draws one line per competitor across dates.
func CompetitorRevenue(rows []report.CompetitorRevenue) (Chart, error) {
	var dates []string
	series := map[string]map[string]float64{}
	for _, r := range rows {
		d := observation.FormatDay(r.Date)
		dates = append(dates, d)
		if series[r.Competitor] == nil {
			series[r.Competitor] = map[string]float64{}
		}
		series[r.Competitor][d] = r.Revenue.Round(2).InexactFloat64()
	}
	slices.Sort(dates)
	dates = slices.Compact(dates)
	competitors := make([]string, 0, len(series))
	for c := range series {
		competitors = append(competitors, c)
	}
	slices.Sort(competitors)

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Revenue by competitor", fmt.Sprintf("%d competitors, %d dates", len(competitors), len(dates)))...)
	line.SetXAxis(dates)
	for _, c := range competitors {
		data := make([]opts.LineData, len(dates))
		for i, d := range dates {
			if v, ok := series[c][d]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(c, data)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	return render(ChartRevenueCompetitors, "Revenue by competitor", line)
}

// PriceChanges plots the largest relative moves of a diff, gains in green and
// drops in red.
func PriceChanges(res *diff.Result, limit int) (Chart, error) {
	if limit <= 0 {
		limit = DefaultBarLimit
	}
	pairs := res.PriceChanges
	if len(pairs) > limit {
		// Keep the extremes of both ends.
		head := pairs[:limit/2]
		tail := pairs[len(pairs)-(limit-limit/2):]
		pairs = append(slices.Clone(head), tail...)
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Price variation "+res.Label(),
		fmt.Sprintf("%d increased, %d decreased of %d joined", res.Summary.Increased, res.Summary.Decreased, res.Summary.Joined))...)
	labels := make([]string, len(pairs))
	data := make([]opts.BarData, len(pairs))
	for i, p := range pairs {
		labels[i] = p.Key.String()
		color := colorUp
		if p.Direction == diff.Decreased {
			color = colorDown
		}
		data[i] = opts.BarData{
			Name:      p.Current.Title,
			Value:     p.VariationPct.Round(2).InexactFloat64(),
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}
	bar.SetXAxis(labels).AddSeries("variation %", data)
	return render(ChartPriceChanges, "Price variation", bar)
}

// PriceHistory plots the price series and its moving average.
func PriceHistory(productID string, points []report.PricePoint) (Chart, error) {
	dates := make([]string, len(points))
	prices := make([]opts.LineData, len(points))
	sma := make([]opts.LineData, len(points))
	for i, p := range points {
		dates[i] = observation.FormatDay(p.Date)
		prices[i] = opts.LineData{Value: p.Price.InexactFloat64(), Name: p.Competitor}
		if p.SMA.Valid {
			sma[i] = opts.LineData{Value: p.SMA.Decimal.InexactFloat64()}
		} else {
			sma[i] = opts.LineData{Value: nil}
		}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Price history "+productID, fmt.Sprintf("%d observations", len(points)))...)
	line.SetXAxis(dates).
		AddSeries("price", prices, charts.WithLineStyleOpts(opts.LineStyle{Color: colorAccent, Width: 2})).
		AddSeries("sma", sma, charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2, Type: "dashed"}))
	return render(ChartPriceHistory, "Price history", line)
}

// ReorderClasses counts products per urgency class.
func ReorderClasses(rows []report.Reorder) (Chart, error) {
	order := []policy.Class{policy.ClassUrgent, policy.ClassSoon, policy.ClassStable, policy.ClassExcess}
	counts := map[policy.Class]int{}
	for _, r := range rows {
		counts[r.Class]++
	}
	data := make([]opts.PieData, 0, len(order))
	for _, c := range order {
		data = append(data, opts.PieData{Name: string(c), Value: counts[c]})
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(globalOpts("Reorder urgency", fmt.Sprintf("%d products", len(rows)))[:3]...)
	pie.AddSeries("products", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}))
	return render(ChartReorder, "Reorder urgency", pie)
}
