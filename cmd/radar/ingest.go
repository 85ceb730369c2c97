package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"radar/internal/app"
	"radar/internal/ingest"
)

var (
	ingestDate       string
	ingestCompetitor string
	ingestWarnings   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load competitor exports (CSV or XLSX) as a dated snapshot",
	Long: `Parse each file, normalize its rows and append them to the store under
--date. The competitor is taken from --competitor or derived from the file name.
Files are processed in order and the command stops at the first failure.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDate, "date", "d", "", "snapshot date, YYYY-MM-DD (required)")
	ingestCmd.Flags().StringVar(&ingestCompetitor, "competitor", "", "competitor name (default derived from the file name)")
	ingestCmd.Flags().IntVar(&ingestWarnings, "show-warnings", 5, "coercion warnings printed per file")
	_ = ingestCmd.MarkFlagRequired("date")
}

func runIngest(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", ingestDate)
	if err != nil {
		return err
	}
	if date.IsZero() {
		return invalidArgs("--date is required")
	}
	return withComponents(cmd, func(ctx context.Context, comps *app.Components) error {
		for _, path := range args {
			rep, err := ingestFile(ctx, comps.Ingest, path, ingestCompetitor, date)
			printIngestReport(cmd.OutOrStdout(), rep, err)
			if err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func ingestFile(ctx context.Context, svc *ingest.Service, path, competitor string, date time.Time) (ingest.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.Report{Filename: filepath.Base(path)}, err
	}
	defer f.Close()
	return svc.Ingest(ctx, ingest.Upload{
		Filename:   filepath.Base(path),
		Reader:     f,
		Date:       date,
		Competitor: competitor,
	})
}

func printIngestReport(w io.Writer, rep ingest.Report, err error) {
	mark := color.New(color.FgGreen, color.Bold).Sprint("✓")
	if err != nil {
		mark = color.New(color.FgRed, color.Bold).Sprint("✗")
	}
	fmt.Fprintf(w, "%s %s", mark, rep.Filename)
	if rep.Competitor != "" {
		fmt.Fprintf(w, " → %s %s", rep.Competitor, rep.Date.Format("2006-01-02"))
	}
	fmt.Fprintf(w, ": %d rows, %d written, %d skipped", rep.Rows, rep.Written, rep.Skipped)
	if n := len(rep.Warnings); n > 0 {
		fmt.Fprint(w, color.YellowString(", %d warnings", n))
	}
	fmt.Fprintln(w)
	for i, warn := range rep.Warnings {
		if i >= ingestWarnings {
			fmt.Fprintf(w, "    ... %d more\n", len(rep.Warnings)-i)
			break
		}
		fmt.Fprintf(w, "    row %d %s %q: %s\n", warn.Row, warn.Field, warn.Raw, warn.Reason)
	}
	if err != nil {
		fmt.Fprintf(w, "    %s\n", color.RedString(err.Error()))
	}
}
