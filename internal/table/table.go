// Package table is the tabular hand-off between the engines and the
// presentation layers.
package table

import (
	"encoding/json"
	"fmt"
	"time"

	"radar/internal/observation"

	"github.com/shopspring/decimal"
)

// Kind is a display hint for a column. Values stay plain.
type Kind string

const (
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindCurrency Kind = "currency"
	KindPercent  Kind = "percent"
	KindDate     Kind = "date"
)

// Numeric reports whether the kind is right-aligned in text output.
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindCurrency || k == KindPercent
}

type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Table is an ordered result set with named columns. Cells hold string,
// int64, decimal.Decimal or time.Time values.
type Table struct {
	Name    string   `json:"name"`
	Title   string   `json:"title,omitempty"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func New(name, title string, columns ...Column) *Table {
	return &Table{Name: name, Title: title, Columns: columns, Rows: [][]any{}}
}

// Text, Int, Currency, Percent and Date build columns.
func Text(name string) Column     { return Column{Name: name, Kind: KindText} }
func Int(name string) Column      { return Column{Name: name, Kind: KindInteger} }
func Currency(name string) Column { return Column{Name: name, Kind: KindCurrency} }
func Percent(name string) Column  { return Column{Name: name, Kind: KindPercent} }
func Date(name string) Column     { return Column{Name: name, Kind: KindDate} }

// Add appends a row; it panics on arity mismatch since that is a programming error.
func (t *Table) Add(values ...any) {
	if len(values) != len(t.Columns) {
		panic(fmt.Sprintf("table %s: row has %d values, want %d", t.Name, len(values), len(t.Columns)))
	}
	t.Rows = append(t.Rows, values)
}

func (t *Table) Len() int { return len(t.Rows) }

func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// Column returns the index of the named column or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Cell renders one value as text according to its column kind.
func (t *Table) Cell(row, col int) string {
	return Format(t.Columns[col].Kind, t.Rows[row][col])
}

// Strings renders every row as text.
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i := range t.Rows {
		line := make([]string, len(t.Columns))
		for j := range t.Columns {
			line[j] = t.Cell(i, j)
		}
		out[i] = line
	}
	return out
}

// Format renders v using the kind's conventions: two decimals for money and
// percentages, ISO dates.
func Format(kind Kind, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		switch kind {
		case KindCurrency, KindPercent:
			return x.StringFixed(2)
		case KindInteger:
			return x.StringFixed(0)
		default:
			return x.String()
		}
	case time.Time:
		return observation.FormatDay(x)
	case int:
		return fmt.Sprintf("%d", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		if kind == KindInteger {
			return fmt.Sprintf("%.0f", x)
		}
		return fmt.Sprintf("%.2f", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return fmt.Sprint(x)
	}
}

// MarshalJSON emits rows as objects keyed by column name.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		obj := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			v := r[j]
			if d, ok := v.(time.Time); ok {
				v = observation.FormatDay(d)
			}
			obj[c.Name] = v
		}
		rows[i] = obj
	}
	return json.Marshal(struct {
		Name    string           `json:"name"`
		Title   string           `json:"title,omitempty"`
		Columns []Column         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Empty   bool             `json:"empty"`
	}{t.Name, t.Title, t.Columns, rows, t.Empty()})
}
