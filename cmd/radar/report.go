package main

import (
	"strings"

	"github.com/spf13/cobra"

	"radar/internal/analysis"
)

var reportFlags paramFlags

var reportCmd = &cobra.Command{
	Use:   "report <kind>",
	Short: "Generate a rollup report",
	Long: `Generate one report and archive it when report_log is enabled.

Kinds:
  diff                 snapshot comparison (same as "radar diff")
  revenue_brands       revenue by brand for --date or --from/--to
  revenue_competitors  revenue per competitor per date
  buybox               cheapest competitor per product on --date
  reorder              stock cover and reorder class as of --as-of
  price_history        price and moving average for --product`,
	Example: `  radar report revenue_brands --from 2024-03-01 --to 2024-03-07
  radar report reorder --window 14 --competitor "STORE A"
  radar report price_history --product 7891234567890 --sma 5`,
	ValidArgs: analysis.Kinds,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return invalidArgs("report takes exactly one kind (%s)", strings.Join(analysis.Kinds, "|"))
		}
		if !analysis.IsKind(args[0]) {
			return invalidArgs("unknown report kind %q (want %s)", args[0], strings.Join(analysis.Kinds, "|"))
		}
		return nil
	},
	RunE: runReport,
}

func init() {
	reportFlags.bindReport(reportCmd.Flags())
}

func runReport(cmd *cobra.Command, args []string) error {
	kind := args[0]
	if kind == analysis.KindPriceHistory && strings.TrimSpace(reportFlags.productID) == "" {
		return invalidArgs("%s requires --product", kind)
	}
	return runAnalysis(cmd, kind, &reportFlags)
}
