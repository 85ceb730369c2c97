package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"radar/internal/analysis"
	"radar/internal/app"
	"radar/internal/ingest"
	"radar/internal/observation"
	"radar/internal/store"
)

// paramFlags holds the report knobs shared by diff and report.
type paramFlags struct {
	current     string
	baseline    string
	date        string
	from        string
	to          string
	asOf        string
	competitors []string
	productID   string
	view        string
	window      int
	sma         int
	limit       int
	format      string
}

func (f *paramFlags) bindDiff(fs *pflag.FlagSet) {
	fs.StringVar(&f.current, "current", "", "current snapshot date (default newest)")
	fs.StringVar(&f.baseline, "baseline", "", "baseline snapshot date (default second newest)")
	fs.StringSliceVar(&f.competitors, "competitor", nil, "restrict to competitors (repeatable)")
	fs.StringVar(&f.view, "view", "", "print a single table")
	f.bindOutput(fs)
}

func (f *paramFlags) bindReport(fs *pflag.FlagSet) {
	f.bindDiff(fs)
	fs.StringVar(&f.date, "date", "", "snapshot date (default newest)")
	fs.StringVar(&f.from, "from", "", "first date of the range, inclusive")
	fs.StringVar(&f.to, "to", "", "last date of the range, inclusive")
	fs.StringVar(&f.asOf, "as-of", "", "reference date for reorder velocity")
	fs.StringVar(&f.productID, "product", "", "product id for price_history")
	fs.IntVar(&f.window, "window", 0, "reorder window in days (default reports.reorder_window_days)")
	fs.IntVar(&f.sma, "sma", 0, "moving average window (default reports.sma_window)")
}

func (f *paramFlags) bindOutput(fs *pflag.FlagSet) {
	fs.IntVarP(&f.limit, "limit", "n", 20, "rows printed per table, 0 for all")
	fs.StringVarP(&f.format, "format", "f", formatTable, "output format: table|csv|json")
}

func (f *paramFlags) params() (analysis.Params, error) {
	var p analysis.Params
	dates := []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"current", f.current, &p.Current},
		{"baseline", f.baseline, &p.Baseline},
		{"date", f.date, &p.Date},
		{"from", f.from, &p.From},
		{"to", f.to, &p.To},
		{"as-of", f.asOf, &p.AsOf},
	}
	for _, d := range dates {
		t, err := parseDateFlag(d.name, d.raw)
		if err != nil {
			return p, err
		}
		*d.dst = t
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return p, invalidArgs("--from %s is after --to %s", f.from, f.to)
	}
	if f.window < 0 || f.sma < 0 {
		return p, invalidArgs("--window and --sma must be positive")
	}
	p.Competitors = f.competitors
	p.ProductID = strings.TrimSpace(f.productID)
	p.View = strings.TrimSpace(f.view)
	p.WindowDays = f.window
	p.SMAWindow = f.sma
	return p, nil
}

func parseDateFlag(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := observation.ParseDay(raw)
	if err != nil {
		return time.Time{}, invalidArgs("--%s: %v", name, err)
	}
	return t, nil
}

// runAnalysis builds the components, runs kind and prints the result.
func runAnalysis(cmd *cobra.Command, kind string, f *paramFlags) error {
	format, err := parseFormat(f.format)
	if err != nil {
		return err
	}
	p, err := f.params()
	if err != nil {
		return err
	}
	return withComponents(cmd, func(ctx context.Context, comps *app.Components) error {
		out, err := comps.Analysis.Run(ctx, kind, p)
		if err != nil {
			return classify(err)
		}
		return printOutput(cmd.OutOrStdout(), out, format, f.limit)
	})
}

// withComponents opens the stores and engines for the duration of fn.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, comps *app.Components) error) error {
	if loadedCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	ctx := cmd.Context()
	comps, err := app.NewComponents(ctx, loadedCfg)
	if err != nil {
		return classify(err)
	}
	defer comps.Close()
	return fn(ctx, comps)
}

// classify maps domain errors to exit codes.
func classify(err error) error {
	var partial *store.PartialWriteError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &partial):
		return &exitCodeError{code: ExitPartialWrite, msg: err.Error()}
	case errors.Is(err, analysis.ErrInvalidParams),
		errors.Is(err, analysis.ErrUnknownKind),
		errors.Is(err, ingest.ErrInvalidUpload),
		errors.Is(err, store.ErrSnapshotExists):
		return &exitCodeError{code: ExitInvalidArgs, msg: err.Error()}
	default:
		return err
	}
}
