package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"reposcore/leaderboard"
	"reposcore/scoring"
	"reposcore/service"
)

var tierColors = map[scoring.Tier]*color.Color{
	scoring.TierS: color.New(color.FgGreen, color.Bold),
	scoring.TierA: color.New(color.FgCyan, color.Bold),
	scoring.TierB: color.New(color.FgYellow),
	scoring.TierC: color.New(color.FgMagenta),
	scoring.TierD: color.New(color.FgRed),
}

// colorTier renders a tier in its colour. Colour is dropped when disabled.
func colorTier(t scoring.Tier) string {
	c, ok := tierColors[t]
	if !ok {
		return string(t)
	}
	return c.Sprint(string(t))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// writeScoreTable writes one scored repository as a two-column table.
func writeScoreTable(w io.Writer, res *service.Result) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Metric", "Value"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	c := res.Score.Components
	m := res.Score.Metadata
	data := [][]string{
		{"Repository", res.Graph.Metadata.RepoName},
		{"Score", scoring.FormatDisplay(c)},
		{"Tier", colorTier(res.Tier)},
		{"Complexity", formatScore(c.Complexity)},
		{"Activity", formatScore(c.Activity)},
		{"Social", formatScore(c.Social)},
		{"Health", formatScore(c.Health)},
		{"Branches", strconv.Itoa(m.Branches)},
		{"Commits", strconv.Itoa(m.Commits)},
		{"Contributors", strconv.Itoa(m.Contributors)},
		{"Commits (7d)", strconv.Itoa(m.RecentCommits7d)},
	}
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("failed to add table rows: %w", err)
	}
	return table.Render()
}

// writeLeaderboardTable writes one leaderboard page.
func writeLeaderboardTable(w io.Writer, page *leaderboard.Page) error {
	if len(page.Data) == 0 {
		_, err := fmt.Fprintln(w, "No repositories on the leaderboard yet.")
		return err
	}

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Rank", "Repository", "Language", "Stars", "Score", "Tier"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(page.Data))
	for _, r := range page.Data {
		data = append(data, []string{
			strconv.Itoa(r.Rank),
			r.FullName,
			r.Language,
			strconv.Itoa(r.Stars),
			strconv.Itoa(r.Score),
			colorTier(scoring.TierFor(r.Composite())),
		})
	}
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("failed to add table rows: %w", err)
	}
	return table.Render()
}
