package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposcore/db"
	"reposcore/github"
	"reposcore/leaderboard"
	"reposcore/service"
)

var (
	scoreJSON bool
	scoreSave bool
)

// newVisualizer builds a service that only fetches and scores.
func newVisualizer() (*service.Service, error) {
	client, err := github.NewClient(cfg.GitHub)
	if err != nil {
		return nil, err
	}
	return service.New(client, nil, nil), nil
}

var scoreCmd = &cobra.Command{
	Use:   "score <repo>",
	Short: "Fetch and score one repository",
	Long:  `Score accepts https://github.com/owner/name, github.com/owner/name or owner/name.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, err := newVisualizer()
		if err != nil {
			return err
		}

		res, err := svc.Visualize(rootCtx, args[0])
		if err != nil {
			return err
		}
		if res.Score == nil {
			return fmt.Errorf("no score for %s: repository data unavailable", res.Graph.Metadata.RepoName)
		}

		if scoreSave {
			database, err := db.New(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()
			if _, err := leaderboard.NewService(database).SaveScore(rootCtx, res.Raw, *res.Score, res.ScoredAt); err != nil {
				return err
			}
		}

		if scoreJSON {
			return writeIndentedJSON(res)
		}
		return writeScoreTable(os.Stdout, res)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <repo>",
	Short: "Print the visualization graph of one repository as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, err := newVisualizer()
		if err != nil {
			return err
		}

		res, err := svc.Visualize(rootCtx, args[0])
		if err != nil {
			return err
		}
		return writeIndentedJSON(res.Graph)
	},
}

func writeIndentedJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the full result as JSON")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "store the score on the leaderboard")
}
