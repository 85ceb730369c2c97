// Package diff compares two snapshots pair by pair.
package diff

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"radar/internal/logger"
	"radar/internal/observation"
	"radar/internal/store"

	"github.com/shopspring/decimal"
)

const DefaultTopN = 50

var (
	// DefaultThreshold absorbs rounding noise; prices within one cent are unchanged.
	DefaultThreshold = decimal.RequireFromString("0.01")
	hundred          = decimal.NewFromInt(100)
)

type Options struct {
	Threshold decimal.Decimal
	TopN      int
}

func (o Options) normalized() Options {
	if !o.Threshold.IsPositive() {
		o.Threshold = DefaultThreshold
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	return o
}

// Engine joins snapshots read from a store.
type Engine struct {
	store store.Store
	opts  Options
}

func NewEngine(s store.Store, opts Options) *Engine {
	return &Engine{store: s, opts: opts.normalized()}
}

// Request names the two snapshots. Competitors optionally restricts both sides.
type Request struct {
	Current     time.Time
	Baseline    time.Time
	Competitors []string
}

func (r Request) validate() error {
	if r.Current.IsZero() || r.Baseline.IsZero() {
		return fmt.Errorf("diff requires both current and baseline dates")
	}
	return nil
}

// Diff scans the baseline into memory, then streams the current snapshot
// against it.
func (e *Engine) Diff(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	current, baseline := observation.Day(req.Current), observation.Day(req.Baseline)
	res := &Result{
		Current:     current,
		Baseline:    baseline,
		Competitors: store.Filter{Competitors: req.Competitors}.CompetitorNames(),
		Threshold:   e.opts.Threshold,
	}

	base := make(map[observation.Key]observation.Observation)
	baseFilter := store.ForDates(baseline).WithCompetitors(req.Competitors...)
	for obs, err := range e.store.Scan(ctx, baseFilter) {
		if err != nil {
			return nil, fmt.Errorf("scan baseline %s: %w", observation.FormatDay(baseline), err)
		}
		if _, dup := base[obs.Key()]; dup {
			res.Summary.DuplicateKeys++
		}
		base[obs.Key()] = obs
	}

	joined := make(map[observation.Key]int)
	fresh := make(map[observation.Key]int)
	curFilter := store.ForDates(current).WithCompetitors(req.Competitors...)
	for obs, err := range e.store.Scan(ctx, curFilter) {
		if err != nil {
			return nil, fmt.Errorf("scan current %s: %w", observation.FormatDay(current), err)
		}
		key := obs.Key()
		b, ok := base[key]
		if !ok {
			if i, dup := fresh[key]; dup {
				res.Summary.DuplicateKeys++
				res.New[i] = obs
				continue
			}
			fresh[key] = len(res.New)
			res.New = append(res.New, obs)
			continue
		}
		pair := e.pair(b, obs)
		if i, dup := joined[key]; dup {
			res.Summary.DuplicateKeys++
			res.Pairs[i] = pair
			continue
		}
		joined[key] = len(res.Pairs)
		res.Pairs = append(res.Pairs, pair)
	}
	for key, b := range base {
		if _, ok := joined[key]; !ok {
			res.Discontinued = append(res.Discontinued, b)
		}
	}

	res.build(e.opts)
	if res.Summary.DuplicateKeys > 0 {
		logger.Warnf("diff %s: %d duplicate (product, competitor) keys collapsed", res.Label(), res.Summary.DuplicateKeys)
	}
	logger.Debugf("diff %s: joined=%d new=%d discontinued=%d", res.Label(), res.Summary.Joined, res.Summary.New, res.Summary.Discontinued)
	return res, nil
}

func (e *Engine) pair(base, cur observation.Observation) Pair {
	delta := cur.Price.Sub(base.Price)
	pct := decimal.Zero
	if base.Price.IsPositive() {
		pct = delta.Div(base.Price).Mul(hundred)
	}
	dir := Unchanged
	switch {
	case delta.GreaterThan(e.opts.Threshold):
		dir = Increased
	case delta.LessThan(e.opts.Threshold.Neg()):
		dir = Decreased
	}
	return Pair{
		Key:          cur.Key(),
		Current:      cur,
		Baseline:     base,
		PriceDelta:   delta,
		VariationPct: pct,
		Direction:    dir,
	}
}

func (r *Result) build(opts Options) {
	slices.SortFunc(r.Pairs, func(a, b Pair) int { return compareKeys(a.Key, b.Key) })
	byKey := func(a, b observation.Observation) int { return compareKeys(a.Key(), b.Key()) }
	slices.SortFunc(r.New, byKey)
	slices.SortFunc(r.Discontinued, byKey)

	s := &r.Summary
	s.Joined = len(r.Pairs)
	s.New = len(r.New)
	s.Discontinued = len(r.Discontinued)
	r.PriceChanges, r.Stockouts, r.Restocks = nil, nil, nil
	for _, p := range r.Pairs {
		switch p.Direction {
		case Increased:
			s.Increased++
		case Decreased:
			s.Decreased++
		default:
			s.Unchanged++
		}
		if p.Direction != Unchanged {
			r.PriceChanges = append(r.PriceChanges, p)
		}
		if p.Stockout() {
			r.Stockouts = append(r.Stockouts, p)
		}
		if p.Restock() {
			r.Restocks = append(r.Restocks, p)
		}
	}
	s.Stockouts = len(r.Stockouts)
	s.Restocks = len(r.Restocks)

	slices.SortStableFunc(r.PriceChanges, func(a, b Pair) int {
		if c := b.VariationPct.Cmp(a.VariationPct); c != 0 {
			return c
		}
		if c := b.PriceDelta.Cmp(a.PriceDelta); c != 0 {
			return c
		}
		return compareKeys(a.Key, b.Key)
	})

	r.TopSellers = slices.Clone(r.Pairs)
	slices.SortStableFunc(r.TopSellers, func(a, b Pair) int {
		if c := cmp.Compare(b.Current.UnitsSold, a.Current.UnitsSold); c != 0 {
			return c
		}
		return compareKeys(a.Key, b.Key)
	})
	if len(r.TopSellers) > opts.TopN {
		r.TopSellers = r.TopSellers[:opts.TopN]
	}
}

func compareKeys(a, b observation.Key) int {
	if c := cmp.Compare(a.Competitor, b.Competitor); c != 0 {
		return c
	}
	return cmp.Compare(a.ProductID, b.ProductID)
}
