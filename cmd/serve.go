package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reposcore/api"
	"reposcore/db"
	"reposcore/logger"
	"reposcore/service"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled rescoring",
	RunE: func(_ *cobra.Command, _ []string) error {
		if serveMigrate {
			if err := db.Migrate(cfg.Database, -1); err != nil {
				return err
			}
		}

		svc, err := service.NewService(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Error("Error during service shutdown", zap.Error(err))
			}
		}()

		handler := api.NewHandler(svc, svc.Leaderboard(), svc.Captions(), svc, cfg.UserHeader)
		return svc.Start(handler.Routes())
	},
}

var migrateVersion int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Migrate the schema to the latest version, or to --version N. --version 0 rolls every migration back.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return db.Migrate(cfg.Database, migrateVersion)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	migrateCmd.Flags().IntVar(&migrateVersion, "version", -1, "target schema version (-1 for latest)")
}
