package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"radar/internal/analysis"
	"radar/internal/table"
)

const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

var outputFormats = []string{formatTable, formatCSV, formatJSON}

// signedColumns are painted green/red by sign in text output.
var signedColumns = map[string]table.ColorFunc{
	"price_delta":   table.SignColor,
	"variation_pct": table.SignColor,
}

func parseFormat(s string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	for _, known := range outputFormats {
		if f == known {
			return f, nil
		}
	}
	return "", invalidArgs("unknown format %q (want %s)", s, strings.Join(outputFormats, "|"))
}

// printOutput writes an analysis output in the requested format. CSV emits
// every table back to back, separated by a blank line.
func printOutput(w io.Writer, out *analysis.Output, format string, limit int) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case formatCSV:
		for i, t := range out.Tables {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if err := table.WriteCSV(w, t); err != nil {
				return err
			}
		}
		return nil
	}

	if out.Empty && len(out.Tables) == 0 {
		_, err := fmt.Fprintln(w, color.YellowString(out.Summary))
		return err
	}
	if out.Summary != "" {
		if _, err := fmt.Fprintln(w, color.New(color.Bold).Sprint(out.Summary)); err != nil {
			return err
		}
	}
	for _, t := range out.Tables {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if t.Empty() {
			if _, err := fmt.Fprintf(w, "%s\n  (none)\n", color.New(color.Bold, color.FgCyan).Sprint(t.Title)); err != nil {
				return err
			}
			continue
		}
		if err := table.Render(w, t, table.RenderOptions{Colors: signedColumns, Limit: limit}); err != nil {
			return err
		}
		if limit > 0 && t.Len() > limit {
			if _, err := fmt.Fprintf(w, "  ... %d more rows\n", t.Len()-limit); err != nil {
				return err
			}
		}
	}
	if out.ArchiveID != "" {
		if _, err := fmt.Fprintf(w, "\narchived as %s\n", out.ArchiveID); err != nil {
			return err
		}
	}
	return nil
}
