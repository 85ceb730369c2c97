package diff

import (
	"time"

	"radar/internal/observation"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Increased Direction = "increased"
	Decreased Direction = "decreased"
	Unchanged Direction = "unchanged"
)

// Pair is one (product, competitor) present in both snapshots.
type Pair struct {
	Key          observation.Key         `json:"-"`
	Current      observation.Observation `json:"current"`
	Baseline     observation.Observation `json:"baseline"`
	PriceDelta   decimal.Decimal         `json:"price_delta"`
	VariationPct decimal.Decimal         `json:"price_variation_pct"`
	Direction    Direction               `json:"direction"`
}

// Stockout: had stock at baseline, none now.
func (p Pair) Stockout() bool { return p.Current.Stock == 0 && p.Baseline.Stock > 0 }

// Restock: had none at baseline, has stock now.
func (p Pair) Restock() bool { return p.Current.Stock > 0 && p.Baseline.Stock == 0 }

type Summary struct {
	Joined        int `json:"joined"`
	Increased     int `json:"increased"`
	Decreased     int `json:"decreased"`
	Unchanged     int `json:"unchanged"`
	Stockouts     int `json:"stockouts"`
	Restocks      int `json:"restocks"`
	New           int `json:"new"`
	Discontinued  int `json:"discontinued"`
	DuplicateKeys int `json:"duplicate_keys"`
}

// Result holds the joined pairs and every view derived from them.
// New and Discontinued never feed the joined counters or the core views.
type Result struct {
	Current     time.Time       `json:"current"`
	Baseline    time.Time       `json:"baseline"`
	Competitors []string        `json:"competitors,omitempty"`
	Threshold   decimal.Decimal `json:"threshold"`
	Summary     Summary         `json:"summary"`

	Pairs        []Pair                    `json:"-"`
	PriceChanges []Pair                    `json:"-"`
	TopSellers   []Pair                    `json:"-"`
	Stockouts    []Pair                    `json:"-"`
	Restocks     []Pair                    `json:"-"`
	New          []observation.Observation `json:"-"`
	Discontinued []observation.Observation `json:"-"`
}

// Empty reports the "insufficient data" state: no pair exists on both dates.
func (r *Result) Empty() bool { return r.Summary.Joined == 0 }

func (r *Result) Label() string {
	return observation.FormatDay(r.Current) + " vs " + observation.FormatDay(r.Baseline)
}
