package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reposcore/config"
	"reposcore/logger"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg holds the loaded configuration.
var cfg = config.NewConfig()

var (
	configPath string
	logLevel   string
	noColor    bool
)

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:           "reposcore",
	Short:         "Score GitHub repositories and serve their visualizations.",
	Long:          `reposcore fetches GitHub repositories, scores them, ranks them on a leaderboard and serves the graph visualizations over HTTP.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.Load(configPath); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if err := logger.Initialize(cfg.LogLevel, cfg.LogFormat); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if noColor {
			color.NoColor = true
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		logger.Sync()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is "+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(serveCmd, migrateCmd, scoreCmd, graphCmd, leaderboardCmd, exportCmd)
}
