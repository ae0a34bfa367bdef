package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reposcore/db"
	"reposcore/export"
	"reposcore/leaderboard"
	"reposcore/logger"
)

var (
	boardLimit  int
	boardOffset int

	exportOut   string
	exportLimit int
)

// withLeaderboard opens the database for the duration of fn.
func withLeaderboard(fn func(*leaderboard.Service) error) error {
	database, err := db.New(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return fn(leaderboard.NewService(database))
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the ranked leaderboard",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withLeaderboard(func(board *leaderboard.Service) error {
			page, err := board.TopRepositories(rootCtx, boardLimit, boardOffset)
			if err != nil {
				return err
			}
			return writeLeaderboardTable(os.Stdout, page)
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the leaderboard to a Parquet file",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withLeaderboard(func(board *leaderboard.Service) error {
			page, err := board.TopRepositories(rootCtx, exportLimit, 0)
			if err != nil {
				return err
			}

			rows := export.LeaderboardRows(page.Data, time.Now().UTC())
			if err := export.WriteLeaderboardParquet(rows, exportOut); err != nil {
				return err
			}

			logger.Info("Leaderboard exported", zap.String("path", exportOut), zap.Int("rows", len(rows)))
			_, err = fmt.Fprintf(os.Stdout, "Exported %d repositories to %s\n", len(rows), exportOut)
			return err
		})
	},
}

func init() {
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", leaderboard.DefaultTopLimit, "number of repositories to show")
	leaderboardCmd.Flags().IntVar(&boardOffset, "offset", 0, "number of top repositories to skip")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "leaderboard.parquet", "output Parquet file")
	exportCmd.Flags().IntVar(&exportLimit, "limit", leaderboard.MaxLimit, "number of repositories to export")
}
