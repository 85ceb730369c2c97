// Package analysis runs diffs and rollups by kind, archives the outputs and
// feeds the chart builders. The HTTP and CLI surfaces both go through it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"radar/internal/analysis/visual"
	"radar/internal/diff"
	"radar/internal/logger"
	"radar/internal/observation"
	"radar/internal/policy"
	"radar/internal/report"
	"radar/internal/snapshot"
	"radar/internal/store"
	"radar/internal/table"
)

// Report kinds.
const (
	KindDiff               = "diff"
	KindRevenueBrands      = "revenue_brands"
	KindRevenueCompetitors = "revenue_competitors"
	KindBuyBox             = "buybox"
	KindReorder            = "reorder"
	KindPriceHistory       = "price_history"
)

// Kinds lists every kind Run accepts.
var Kinds = []string{KindDiff, KindRevenueBrands, KindRevenueCompetitors, KindBuyBox, KindReorder, KindPriceHistory}

var (
	ErrUnknownKind   = errors.New("unknown report kind")
	ErrInvalidParams = errors.New("invalid parameters")
)

// Params carries every knob a kind may read. Zero values fall back to the
// latest snapshot or the engine defaults.
type Params struct {
	Current     time.Time
	Baseline    time.Time
	Date        time.Time
	From        time.Time
	To          time.Time
	AsOf        time.Time
	Competitors []string
	ProductID   string
	WindowDays  int
	SMAWindow   int
	// View selects a single diff table.
	View string
}

// Values renders the non-zero parameters for the archive.
func (p Params) Values() map[string]string {
	out := map[string]string{}
	day := func(k string, t time.Time) {
		if !t.IsZero() {
			out[k] = observation.FormatDay(t)
		}
	}
	day("current", p.Current)
	day("baseline", p.Baseline)
	day("date", p.Date)
	day("from", p.From)
	day("to", p.To)
	day("as_of", p.AsOf)
	if names := (store.Filter{Competitors: p.Competitors}).CompetitorNames(); len(names) > 0 {
		out["competitor"] = strings.Join(names, ",")
	}
	if p.ProductID != "" {
		out["product_id"] = p.ProductID
	}
	if p.WindowDays > 0 {
		out["window_days"] = strconv.Itoa(p.WindowDays)
	}
	if p.SMAWindow > 0 {
		out["sma_window"] = strconv.Itoa(p.SMAWindow)
	}
	if p.View != "" {
		out["view"] = p.View
	}
	return out
}

// Output is one generated report.
type Output struct {
	Kind      string            `json:"kind"`
	Params    map[string]string `json:"params"`
	Summary   string            `json:"summary"`
	Empty     bool              `json:"empty"`
	Data      any               `json:"data"`
	Tables    []*table.Table    `json:"tables"`
	ArchiveID string            `json:"archive_id,omitempty"`
}

// Archiver stores generated outputs.
type Archiver interface {
	Save(ctx context.Context, kind string, params map[string]string, summary string, payload any) (string, error)
}

type Service struct {
	index   *snapshot.Index
	diff    *diff.Engine
	reports *report.Engine
	archive Archiver
}

// NewService wires the engines. archive may be nil.
func NewService(index *snapshot.Index, diffEngine *diff.Engine, reports *report.Engine, archive Archiver) *Service {
	return &Service{index: index, diff: diffEngine, reports: reports, archive: archive}
}

// Run generates the report named by kind and archives it when an archive is
// configured. An empty store yields an empty Output, not an error.
func (s *Service) Run(ctx context.Context, kind string, p Params) (*Output, error) {
	out := &Output{Kind: kind, Params: p.Values()}
	var err error
	switch kind {
	case KindDiff:
		err = s.runDiff(ctx, p, out)
	case KindRevenueBrands:
		err = s.runRevenueBrands(ctx, p, out)
	case KindRevenueCompetitors:
		err = s.runRevenueCompetitors(ctx, p, out)
	case KindBuyBox:
		err = s.runBuyBox(ctx, p, out)
	case KindReorder:
		err = s.runReorder(ctx, p, out)
	case KindPriceHistory:
		err = s.runPriceHistory(ctx, p, out)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if errors.Is(err, snapshot.ErrNoSnapshots) {
		out.Empty = true
		out.Summary = err.Error()
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	s.save(ctx, out)
	return out, nil
}

func (s *Service) save(ctx context.Context, out *Output) {
	if s.archive == nil {
		return
	}
	id, err := s.archive.Save(ctx, out.Kind, out.Params, out.Summary, out)
	if err != nil {
		logger.Warnf("archive %s failed: %v", out.Kind, err)
		return
	}
	out.ArchiveID = id
}

// latest resolves the newest snapshot date.
func (s *Service) latest(ctx context.Context) (time.Time, error) {
	sel, err := s.index.Selection(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return sel.Current, nil
}

func (s *Service) diffResult(ctx context.Context, p Params) (*diff.Result, error) {
	sel, err := s.index.Resolve(ctx, snapshot.Selection{Current: p.Current, Baseline: p.Baseline})
	if err != nil {
		return nil, err
	}
	return s.diff.Diff(ctx, diff.Request{Current: sel.Current, Baseline: sel.Baseline, Competitors: p.Competitors})
}

func (s *Service) runDiff(ctx context.Context, p Params, out *Output) error {
	res, err := s.diffResult(ctx, p)
	if err != nil {
		return err
	}
	out.Params["current"] = observation.FormatDay(res.Current)
	out.Params["baseline"] = observation.FormatDay(res.Baseline)
	out.Data = res
	out.Empty = res.Empty()
	sum := res.Summary
	out.Summary = fmt.Sprintf("%s: %d joined, %d increased, %d decreased, %d stockouts, %d restocks, %d new, %d discontinued",
		res.Label(), sum.Joined, sum.Increased, sum.Decreased, sum.Stockouts, sum.Restocks, sum.New, sum.Discontinued)
	if p.View == "" {
		out.Tables = res.Tables()
		return nil
	}
	t := res.Table(p.View)
	if t == nil {
		return fmt.Errorf("%w: unknown diff view %q", ErrInvalidParams, p.View)
	}
	out.Tables = []*table.Table{t}
	return nil
}

// snapshotFilter uses Date, then From/To, then the latest snapshot.
func (s *Service) snapshotFilter(ctx context.Context, p Params) (store.Filter, error) {
	f := store.Filter{Competitors: p.Competitors, From: p.From, To: p.To}
	switch {
	case !p.Date.IsZero():
		f.Dates = []time.Time{p.Date}
	case p.From.IsZero() && p.To.IsZero():
		d, err := s.latest(ctx)
		if err != nil {
			return f, err
		}
		f.Dates = []time.Time{d}
	}
	return f, nil
}

func (s *Service) brandRevenue(ctx context.Context, p Params) ([]report.BrandRevenue, error) {
	f, err := s.snapshotFilter(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.reports.RevenueByBrand(ctx, f)
}

func (s *Service) runRevenueBrands(ctx context.Context, p Params, out *Output) error {
	rows, err := s.brandRevenue(ctx, p)
	if err != nil {
		return err
	}
	out.Data = rows
	out.Empty = len(rows) == 0
	out.Tables = []*table.Table{report.BrandRevenueTable(rows)}
	out.Summary = fmt.Sprintf("%d brands", len(rows))
	return nil
}

func (s *Service) competitorRevenue(ctx context.Context, p Params) ([]report.CompetitorRevenue, error) {
	f := store.Filter{Competitors: p.Competitors, From: p.From, To: p.To}
	if !p.Date.IsZero() {
		f.Dates = []time.Time{p.Date}
	}
	return s.reports.RevenueByCompetitor(ctx, f)
}

func (s *Service) runRevenueCompetitors(ctx context.Context, p Params, out *Output) error {
	rows, err := s.competitorRevenue(ctx, p)
	if err != nil {
		return err
	}
	out.Data = rows
	out.Empty = len(rows) == 0
	out.Tables = []*table.Table{report.CompetitorRevenueTable(rows)}
	out.Summary = fmt.Sprintf("%d (date, competitor) points", len(rows))
	return nil
}

func (s *Service) runBuyBox(ctx context.Context, p Params, out *Output) error {
	date := p.Date
	if date.IsZero() {
		d, err := s.latest(ctx)
		if err != nil {
			return err
		}
		date = d
		out.Params["date"] = observation.FormatDay(d)
	}
	rows, err := s.reports.BuyBox(ctx, date, p.Competitors...)
	if err != nil {
		return err
	}
	out.Data = rows
	out.Empty = len(rows) == 0
	out.Tables = []*table.Table{report.BuyBoxTable(rows)}
	out.Summary = fmt.Sprintf("%d products priced on %s", len(rows), observation.FormatDay(date))
	return nil
}

func (s *Service) reorder(ctx context.Context, p Params) ([]report.Reorder, time.Time, error) {
	asOf := p.AsOf
	if asOf.IsZero() {
		asOf = p.Date
	}
	if asOf.IsZero() {
		d, err := s.latest(ctx)
		if err != nil {
			return nil, asOf, err
		}
		asOf = d
	}
	rows, err := s.reports.Reorder(ctx, asOf, p.WindowDays)
	return rows, asOf, err
}

func (s *Service) runReorder(ctx context.Context, p Params, out *Output) error {
	rows, asOf, err := s.reorder(ctx, p)
	if err != nil {
		return err
	}
	out.Params["as_of"] = observation.FormatDay(asOf)
	out.Data = rows
	out.Empty = len(rows) == 0
	out.Tables = []*table.Table{report.ReorderTable(rows)}
	urgent := 0
	for _, r := range rows {
		if r.Class == policy.ClassUrgent {
			urgent++
		}
	}
	out.Summary = fmt.Sprintf("%d products as of %s, %d urgent", len(rows), observation.FormatDay(asOf), urgent)
	return nil
}

func (s *Service) priceHistory(ctx context.Context, p Params) ([]report.PricePoint, error) {
	if strings.TrimSpace(p.ProductID) == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidParams)
	}
	competitor := ""
	if len(p.Competitors) > 0 {
		competitor = p.Competitors[0]
	}
	return s.reports.PriceHistory(ctx, p.ProductID, competitor, p.SMAWindow)
}

func (s *Service) runPriceHistory(ctx context.Context, p Params, out *Output) error {
	points, err := s.priceHistory(ctx, p)
	if err != nil {
		return err
	}
	out.Data = points
	out.Empty = len(points) == 0
	out.Tables = []*table.Table{report.PriceHistoryTable(p.ProductID, points)}
	out.Summary = fmt.Sprintf("%d price points for %s", len(points), p.ProductID)
	return nil
}

// Charts lists the chart names Chart accepts.
var Charts = []string{visual.ChartPriceChanges, visual.ChartRevenueBrands, visual.ChartRevenueCompetitors, visual.ChartPriceHistory, visual.ChartReorder}

// Chart builds the named chart from the same parameters as Run. Charts are
// not archived.
func (s *Service) Chart(ctx context.Context, name string, p Params) (visual.Chart, error) {
	switch name {
	case visual.ChartPriceChanges:
		res, err := s.diffResult(ctx, p)
		if err != nil {
			return visual.Chart{}, err
		}
		return visual.PriceChanges(res, visual.DefaultBarLimit)
	case visual.ChartRevenueBrands:
		rows, err := s.brandRevenue(ctx, p)
		if err != nil {
			return visual.Chart{}, err
		}
		return visual.BrandRevenue(rows, visual.DefaultBarLimit)
	case visual.ChartRevenueCompetitors:
		rows, err := s.competitorRevenue(ctx, p)
		if err != nil {
			return visual.Chart{}, err
		}
		return visual.CompetitorRevenue(rows)
	case visual.ChartPriceHistory:
		points, err := s.priceHistory(ctx, p)
		if err != nil {
			return visual.Chart{}, err
		}
		return visual.PriceHistory(p.ProductID, points)
	case visual.ChartReorder:
		rows, _, err := s.reorder(ctx, p)
		if err != nil {
			return visual.Chart{}, err
		}
		return visual.ReorderClasses(rows)
	default:
		return visual.Chart{}, fmt.Errorf("%w: chart %q (want %s)", ErrUnknownKind, name, strings.Join(Charts, "|"))
	}
}

// IsKind reports whether kind is accepted by Run.
func IsKind(kind string) bool { return slices.Contains(Kinds, kind) }
