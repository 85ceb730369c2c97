package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"radar/internal/config"
	"radar/internal/logger"
)

// Global flag values.
var (
	configPath string
	envFiles   []string
	verbose    bool
	noColor    bool
)

var (
	loadedCfg *config.Config
	logFiles  []*os.File
)

// rootCmd is the base command for radar.
var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Track competitor prices across daily catalog snapshots",
	Long: `Radar ingests daily competitor catalog exports, stores them as dated
snapshots and compares any two of them: price changes, new and discontinued
products, stock-outs, restocks, revenue rollups, buy-box positions and
reorder suggestions.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		closeLogFiles()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config and points the logger at stderr plus the configured files.
func setup(cmd *cobra.Command, _ []string) error {
	if noColor {
		color.NoColor = true
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return &exitCodeError{code: ExitFailure, msg: fmt.Sprintf("load config: %v", err)}
	}
	if err := setupLogOutput(cmd.ErrOrStderr(), cfg.App.LogPath); err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if err := setupAuditOutput(cfg.App.AuditPath); err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if verbose {
		cfg.App.LogLevel = "debug"
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Debugf("config loaded (env=%s, driver=%s)", cfg.App.Env, cfg.Store.NormalizedDriver())
	loadedCfg = cfg
	return nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logFiles = append(logFiles, f)
	return f, nil
}

func setupLogOutput(base io.Writer, path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		logger.SetOutput(base)
		return nil
	}
	f, err := openAppend(trimmed)
	if err != nil {
		return err
	}
	mw := io.MultiWriter(base, f)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return nil
}

func setupAuditOutput(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		logger.SetAuditWriter(nil)
		return nil
	}
	f, err := openAppend(trimmed)
	if err != nil {
		return err
	}
	logger.SetAuditWriter(f)
	return nil
}

func closeLogFiles() {
	logger.SetAuditWriter(nil)
	for _, f := range logFiles {
		_ = f.Close()
	}
	logFiles = nil
}
