package main

import (
	"github.com/spf13/cobra"

	"radar/internal/analysis"
	"radar/internal/diff"
)

var diffFlags paramFlags

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two snapshots",
	Long: `Join the current and baseline snapshots on (product, competitor) and print
price changes, top sellers, stock-outs, restocks, new and discontinued products.
Without dates the two newest snapshots are compared.`,
	Example: `  radar diff
  radar diff --current 2024-03-02 --baseline 2024-03-01 --competitor "STORE A"
  radar diff --view price_changes --format csv > changes.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAnalysis(cmd, analysis.KindDiff, &diffFlags)
	},
}

func init() {
	diffFlags.bindDiff(diffCmd.Flags())
	_ = diffCmd.RegisterFlagCompletionFunc("view", cobra.FixedCompletions(diff.Views, cobra.ShellCompDirectiveNoFileComp))
}
