package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"radar/internal/app"
	"radar/internal/snapshot"
	"radar/internal/store"
	"radar/internal/table"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshot dates, competitors and the default comparison",
	Args:  cobra.NoArgs,
	RunE:  runSnapshots,
}

func runSnapshots(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	return withComponents(cmd, func(ctx context.Context, comps *app.Components) error {
		sel, err := comps.Index.Selection(ctx)
		if errors.Is(err, snapshot.ErrNoSnapshots) {
			_, err = fmt.Fprintln(w, color.YellowString(err.Error()))
			return err
		}
		if err != nil {
			return err
		}

		dates, err := comps.Index.ListDates(ctx)
		if err != nil {
			return err
		}
		dt := table.New("dates", "Snapshot dates", table.Date("date"), table.Int("competitors"), table.Int("observations"))
		for _, d := range dates {
			f := store.ForDates(d)
			names, err := comps.Store.Competitors(ctx, f)
			if err != nil {
				return err
			}
			n, err := comps.Store.Count(ctx, f)
			if err != nil {
				return err
			}
			dt.Add(d, len(names), n)
		}

		competitors, err := comps.Index.ListCompetitors(ctx)
		if err != nil {
			return err
		}
		ct := table.New("competitors", "Competitors", table.Text("competitor"), table.Int("dates"))
		for _, c := range competitors {
			seen, err := comps.Store.Dates(ctx, store.Filter{Competitors: []string{c}})
			if err != nil {
				return err
			}
			ct.Add(c, len(seen))
		}

		for _, t := range []*table.Table{dt, ct} {
			if err := table.Render(w, t, table.RenderOptions{}); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		_, err = fmt.Fprintf(w, "default comparison: %s\n", color.New(color.Bold).Sprint(sel.String()))
		return err
	})
}
