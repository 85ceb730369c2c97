package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"radar/internal/app"
	"radar/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP server",
	Long: `Serve the JSON API and the chart pages. When reports.watch_policy is set the
reorder policy file is reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides app.http_addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadedCfg
	if serveAddr != "" {
		cfg.App.HTTPAddr = serveAddr
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg)
	if err != nil {
		return classify(err)
	}
	logger.Infof("radar %s starting (env=%s)", Version, cfg.App.Env)
	return a.Run(ctx)
}
