// Package observation holds the canonical per-(product, competitor, date)
// record and the normalizer that builds it from raw spreadsheet rows.
package observation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of observation dates.
const DateLayout = "2006-01-02"

// Observation is one product seen from one competitor on one date.
type Observation struct {
	Date       time.Time       `json:"observation_date"`
	Competitor string          `json:"competitor"`
	ProductID  string          `json:"product_id"`
	Title      string          `json:"title"`
	Brand      string          `json:"brand"`
	Price      decimal.Decimal `json:"price"`
	Stock      int64           `json:"stock_quantity"`
	UnitsSold  int64           `json:"units_sold"`
	SKU        string          `json:"competitor_sku,omitempty"`
}

// Key is the join identity of an observation inside one snapshot.
type Key struct {
	ProductID  string
	Competitor string
}

func (k Key) String() string { return k.ProductID + "@" + k.Competitor }

// Less orders keys by competitor, then product.
func (k Key) Less(other Key) bool {
	if k.Competitor != other.Competitor {
		return k.Competitor < other.Competitor
	}
	return k.ProductID < other.ProductID
}

func (o Observation) Key() Key {
	return Key{ProductID: o.ProductID, Competitor: o.Competitor}
}

// Revenue estimates price × units sold.
func (o Observation) Revenue() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.UnitsSold))
}

// Validate checks the invariants every store relies on.
func (o Observation) Validate() error {
	var errs []error
	if o.Date.IsZero() {
		errs = append(errs, errors.New("observation_date missing"))
	}
	if strings.TrimSpace(o.Competitor) == "" {
		errs = append(errs, errors.New("competitor missing"))
	}
	if strings.TrimSpace(o.ProductID) == "" {
		errs = append(errs, errors.New("product_id missing"))
	}
	if o.Price.IsNegative() {
		errs = append(errs, fmt.Errorf("price %s < 0", o.Price))
	}
	if o.Stock < 0 {
		errs = append(errs, fmt.Errorf("stock_quantity %d < 0", o.Stock))
	}
	if o.UnitsSold < 0 {
		errs = append(errs, fmt.Errorf("units_sold %d < 0", o.UnitsSold))
	}
	return errors.Join(errs...)
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay renders t in DateLayout.
func FormatDay(t time.Time) string {
	return Day(t).Format(DateLayout)
}

var dayLayouts = []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

// ParseDay accepts ISO dates, RFC 3339 timestamps and dd/mm/yyyy.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want %s)", s, DateLayout)
}

// RawRow is one uploaded spreadsheet row, cells kept as text.
type RawRow struct {
	Line      int
	Price     string
	Stock     string
	UnitsSold string
	Title     string
	ProductID string
	Brand     string
	SKU       string
}

// Field names used in warnings.
const (
	FieldPrice     = "price"
	FieldStock     = "stock_quantity"
	FieldUnitsSold = "units_sold"
	FieldProductID = "product_id"
	FieldTitle     = "title"
)

// Warning records a cell that was defaulted or clamped during normalization.
type Warning struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("row %d %s=%q: %s", w.Row, w.Field, w.Raw, w.Reason)
}

// Result is a normalized observation plus the warnings raised while building it.
// An empty Warnings slice means every field parsed cleanly.
type Result struct {
	Observation Observation
	Warnings    []Warning
}

func (r Result) Clean() bool { return len(r.Warnings) == 0 }
