// Package policy holds the reorder thresholds and keeps them in sync with
// their YAML file.
package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Class is a reorder urgency bucket.
type Class string

const (
	ClassUrgent Class = "urgent_reorder"
	ClassSoon   Class = "reorder_soon"
	ClassStable Class = "stable"
	ClassExcess Class = "excess"
)

// Thresholds bound the days-of-cover buckets.
type Thresholds struct {
	UrgentDays float64 `mapstructure:"urgent_days" yaml:"urgent_days" json:"urgent_days"`
	SoonDays   float64 `mapstructure:"soon_days" yaml:"soon_days" json:"soon_days"`
	ExcessDays float64 `mapstructure:"excess_days" yaml:"excess_days" json:"excess_days"`
}

// DefaultThresholds are 7/15/60 days.
func DefaultThresholds() Thresholds {
	return Thresholds{UrgentDays: 7, SoonDays: 15, ExcessDays: 60}
}

func (t Thresholds) Validate() error {
	if t.UrgentDays < 0 || t.SoonDays < 0 || t.ExcessDays < 0 {
		return fmt.Errorf("reorder thresholds must be >= 0 (got %v/%v/%v)", t.UrgentDays, t.SoonDays, t.ExcessDays)
	}
	if t.UrgentDays > t.SoonDays {
		return fmt.Errorf("urgent_days (%v) must not exceed soon_days (%v)", t.UrgentDays, t.SoonDays)
	}
	if t.SoonDays > t.ExcessDays {
		return fmt.Errorf("soon_days (%v) must not exceed excess_days (%v)", t.SoonDays, t.ExcessDays)
	}
	return nil
}

// Classify buckets days of cover: below urgent, below soon, above excess,
// otherwise stable.
func (t Thresholds) Classify(daysOfCover decimal.Decimal) Class {
	switch {
	case daysOfCover.LessThan(decimal.NewFromFloat(t.UrgentDays)):
		return ClassUrgent
	case daysOfCover.LessThan(decimal.NewFromFloat(t.SoonDays)):
		return ClassSoon
	case daysOfCover.GreaterThan(decimal.NewFromFloat(t.ExcessDays)):
		return ClassExcess
	default:
		return ClassStable
	}
}

// overlay fills zero fields of t from base.
func (t Thresholds) overlay(base Thresholds) Thresholds {
	if t.UrgentDays == 0 {
		t.UrgentDays = base.UrgentDays
	}
	if t.SoonDays == 0 {
		t.SoonDays = base.SoonDays
	}
	if t.ExcessDays == 0 {
		t.ExcessDays = base.ExcessDays
	}
	return t
}

// Policy is the full file content: default thresholds plus per-brand overrides.
type Policy struct {
	Reorder Thresholds            `mapstructure:"reorder" yaml:"reorder" json:"reorder"`
	Brands  map[string]Thresholds `mapstructure:"brands" yaml:"brands,omitempty" json:"brands,omitempty"`
}

// For returns the thresholds that apply to brand.
func (p Policy) For(brand string) Thresholds {
	if o, ok := p.Brands[brandKey(brand)]; ok {
		return o.overlay(p.Reorder)
	}
	return p.Reorder
}

func (p Policy) normalized() Policy {
	out := Policy{Reorder: p.Reorder, Brands: make(map[string]Thresholds, len(p.Brands))}
	for brand, t := range p.Brands {
		if k := brandKey(brand); k != "" {
			out.Brands[k] = t.overlay(p.Reorder)
		}
	}
	return out
}

func (p Policy) Validate() error {
	if err := p.Reorder.Validate(); err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	for brand, t := range p.normalized().Brands {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("brands.%s: %w", brand, err)
		}
	}
	return nil
}

func brandKey(brand string) string {
	return strings.ToUpper(strings.TrimSpace(brand))
}
