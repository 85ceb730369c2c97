// Package report builds rollups over one snapshot or a window of history.
package report

import (
	"context"
	"fmt"

	"radar/internal/observation"
	"radar/internal/policy"
	"radar/internal/store"

	"github.com/shopspring/decimal"
)

const (
	DefaultReorderWindowDays = 30
	DefaultSMAWindow         = 3
	// NoMovementDays is the days-of-cover sentinel for products that sold nothing.
	NoMovementDays = 999
	// NoBrand labels rows without a brand.
	NoBrand = "(sem marca)"
)

// DefaultUndercut is the buy-box undercut amount.
var DefaultUndercut = decimal.NewFromInt(1)

// ThresholdSource resolves reorder thresholds per brand.
type ThresholdSource interface {
	Thresholds(brand string) policy.Thresholds
}

type Options struct {
	Undercut          decimal.Decimal
	ReorderWindowDays int
	SMAWindow         int
}

func (o Options) normalized() Options {
	if o.Undercut.IsNegative() || o.Undercut.IsZero() {
		o.Undercut = DefaultUndercut
	}
	if o.ReorderWindowDays <= 0 {
		o.ReorderWindowDays = DefaultReorderWindowDays
	}
	if o.SMAWindow <= 0 {
		o.SMAWindow = DefaultSMAWindow
	}
	return o
}

type Engine struct {
	store      store.Store
	thresholds ThresholdSource
	opts       Options
}

// NewEngine builds an engine; a nil source uses policy.DefaultThresholds.
func NewEngine(s store.Store, thresholds ThresholdSource, opts Options) *Engine {
	if thresholds == nil {
		thresholds = policy.Static(policy.Policy{Reorder: policy.DefaultThresholds()})
	}
	return &Engine{store: s, thresholds: thresholds, opts: opts.normalized()}
}

func (e *Engine) Options() Options { return e.opts }

// each streams f and calls fn per observation.
func (e *Engine) each(ctx context.Context, f store.Filter, fn func(observation.Observation)) error {
	for obs, err := range e.store.Scan(ctx, f) {
		if err != nil {
			return fmt.Errorf("scan %s: %w", f.CacheKey(), err)
		}
		fn(obs)
	}
	return nil
}
