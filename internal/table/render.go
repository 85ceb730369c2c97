package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// ColorFunc maps a rendered cell to a colored string.
type ColorFunc func(value string) string

// SignColor paints positive values green and negative values red.
func SignColor(value string) string {
	switch {
	case strings.HasPrefix(value, "-"):
		return color.RedString(value)
	case value == "" || strings.Trim(value, "0.,%") == "":
		return value
	default:
		return color.GreenString(value)
	}
}

// RenderOptions tunes text rendering.
type RenderOptions struct {
	// Colors maps column names to cell colorizers.
	Colors map[string]ColorFunc
	// Limit caps printed rows; 0 prints everything.
	Limit int
}

// Render writes t as an aligned text table.
func Render(w io.Writer, t *Table, opts RenderOptions) error {
	if len(t.Columns) == 0 {
		return nil
	}
	if t.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n", color.New(color.Bold, color.FgCyan).Sprint(t.Title)); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	cells := t.Strings()
	if opts.Limit > 0 && len(cells) > opts.Limit {
		cells = cells[:opts.Limit]
	}
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = utf8.RuneCountInString(col.Name)
	}
	for _, row := range cells {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	bold := color.New(color.Bold)
	header := make([]string, len(t.Columns))
	sep := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = bold.Sprint(pad(col.Name, widths[i], col.Kind.Numeric()))
		sep[i] = strings.Repeat("-", widths[i])
	}
	if _, err := fmt.Fprintf(w, "  %s\n  %s\n", strings.Join(header, "  "), strings.Join(sep, "  ")); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	for _, row := range cells {
		parts := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			// Padding is computed on the raw value so ANSI codes do not skew widths.
			padded := pad(row[i], widths[i], col.Kind.Numeric())
			if fn := opts.Colors[col.Name]; fn != nil {
				padded = strings.Replace(padded, row[i], fn(row[i]), 1)
			}
			parts[i] = padded
		}
		if _, err := fmt.Fprintf(w, "  %s\n", strings.Join(parts, "  ")); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	if len(cells) < t.Len() {
		if _, err := fmt.Fprintf(w, "  ... %d more rows\n", t.Len()-len(cells)); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	if t.Empty() {
		if _, err := fmt.Fprintln(w, color.New(color.Faint).Sprint("  (no rows)")); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	return nil
}

func pad(s string, width int, right bool) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// WriteCSV writes a header row followed by the rendered cells.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Strings()); err != nil {
		return err
	}
	return cw.Error()
}
