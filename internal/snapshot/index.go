// Package snapshot lists the dates and competitors available for comparison.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
)

// ErrNoSnapshots means the store holds no observations yet.
var ErrNoSnapshots = errors.New("no snapshots uploaded yet")

// Selection is the pair of dates a diff compares.
type Selection struct {
	Current  time.Time `json:"current"`
	Baseline time.Time `json:"baseline"`
}

// Same reports whether both sides point at one snapshot.
func (s Selection) Same() bool { return s.Current.Equal(s.Baseline) }

func (s Selection) String() string {
	return fmt.Sprintf("%s vs %s", observation.FormatDay(s.Current), observation.FormatDay(s.Baseline))
}

// Index answers metadata questions through the store's projection queries.
type Index struct {
	store store.Store
}

func NewIndex(s store.Store) *Index {
	return &Index{store: s}
}

// ListDates returns every snapshot date, newest first.
func (i *Index) ListDates(ctx context.Context) ([]time.Time, error) {
	dates, err := i.store.Dates(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", err)
	}
	return store.SortDatesDesc(dates), nil
}

// ListCompetitors returns every normalized competitor name, sorted.
func (i *Index) ListCompetitors(ctx context.Context) ([]string, error) {
	names, err := i.store.Competitors(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}
	return names, nil
}

// Selection lists dates and returns the default comparison.
func (i *Index) Selection(ctx context.Context) (Selection, error) {
	dates, err := i.ListDates(ctx)
	if err != nil {
		return Selection{}, err
	}
	return DefaultSelection(dates)
}

// DefaultSelection picks the newest date as current and the next one as
// baseline. With a single date both sides are the same snapshot.
func DefaultSelection(dates []time.Time) (Selection, error) {
	sorted := store.SortDatesDesc(dates)
	switch len(sorted) {
	case 0:
		return Selection{}, ErrNoSnapshots
	case 1:
		return Selection{Current: sorted[0], Baseline: sorted[0]}, nil
	default:
		return Selection{Current: sorted[0], Baseline: sorted[1]}, nil
	}
}

// Resolve fills zero sides of sel from the defaults.
func (i *Index) Resolve(ctx context.Context, sel Selection) (Selection, error) {
	if !sel.Current.IsZero() && !sel.Baseline.IsZero() {
		return Selection{Current: observation.Day(sel.Current), Baseline: observation.Day(sel.Baseline)}, nil
	}
	def, err := i.Selection(ctx)
	if err != nil {
		return Selection{}, err
	}
	if sel.Current.IsZero() {
		sel.Current = def.Current
	}
	if sel.Baseline.IsZero() {
		sel.Baseline = def.Baseline
	}
	return Selection{Current: observation.Day(sel.Current), Baseline: observation.Day(sel.Baseline)}, nil
}
