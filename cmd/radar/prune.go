package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"radar/internal/app"
	"radar/internal/observation"
	"radar/internal/store"
)

var (
	pruneBefore string
	pruneDays   int
	pruneDryRun bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots older than a cutoff",
	Long: `Delete every observation dated strictly before the cutoff. The cutoff is
--before, or today minus --days, or today minus store.retention_days.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "delete observations dated before this day")
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "keep this many days of history")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "count the rows without deleting them")
	pruneCmd.MarkFlagsMutuallyExclusive("before", "days")
}

func pruneCutoff(now time.Time, before string, days, retention int) (time.Time, error) {
	cutoff, err := parseDateFlag("before", before)
	if err != nil {
		return time.Time{}, err
	}
	if !cutoff.IsZero() {
		return cutoff, nil
	}
	if days < 0 {
		return time.Time{}, invalidArgs("--days must be positive")
	}
	if days == 0 {
		days = retention
	}
	if days <= 0 {
		return time.Time{}, invalidArgs("nothing to prune: pass --before or --days, or set store.retention_days")
	}
	return observation.Day(now).AddDate(0, 0, -days), nil
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cutoff, err := pruneCutoff(time.Now(), pruneBefore, pruneDays, loadedCfg.Store.RetentionDays)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	return withComponents(cmd, func(ctx context.Context, comps *app.Components) error {
		if pruneDryRun {
			n, err := comps.Store.Count(ctx, store.Filter{To: cutoff.AddDate(0, 0, -1)})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%d observations dated before %s would be deleted\n", n, observation.FormatDay(cutoff))
			return err
		}
		n, err := comps.Store.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s %d observations dated before %s\n",
			color.New(color.FgRed, color.Bold).Sprint("deleted"), n, observation.FormatDay(cutoff))
		return err
	})
}
