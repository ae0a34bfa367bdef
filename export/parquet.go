// Package export writes leaderboard snapshots to Parquet files using
// github.com/parquet-go/parquet-go.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"reposcore/models"
	"reposcore/scoring"
)

// LeaderboardRow is one ranked repository in an exported snapshot.
type LeaderboardRow struct {
	Rank     int32  `parquet:"rank,snappy"`
	FullName string `parquet:"full_name,snappy"`
	Owner    string `parquet:"owner,snappy"`
	Name     string `parquet:"name,snappy"`
	URL      string `parquet:"url,snappy"`

	// Language is null when GitHub reports none.
	Language *string `parquet:"language,optional,snappy"`

	Stars int32 `parquet:"stars,snappy"`
	Forks int32 `parquet:"forks,snappy"`

	Score           int32   `parquet:"score,snappy"`
	Tier            string  `parquet:"tier,snappy"`
	ComplexityScore float64 `parquet:"complexity_score,snappy"`
	ActivityScore   float64 `parquet:"activity_score,snappy"`
	SocialScore     float64 `parquet:"social_score,snappy"`
	HealthScore     float64 `parquet:"health_score,snappy"`

	BranchesCount     int32 `parquet:"branches_count,snappy"`
	CommitsCount      int32 `parquet:"commits_count,snappy"`
	ContributorsCount int32 `parquet:"contributors_count,snappy"`
	RecentCommits7d   int32 `parquet:"recent_commits_7d,snappy"`

	LastScoredAt *time.Time `parquet:"last_scored_at,optional,snappy"`
	ExportedAt   time.Time  `parquet:"exported_at,snappy"`
}

// LeaderboardRows converts ranked repositories into export rows.
func LeaderboardRows(ranked []models.RankedRepository, exportedAt time.Time) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(ranked))
	for _, r := range ranked {
		row := LeaderboardRow{
			Rank:              int32(r.Rank),
			FullName:          r.FullName,
			Owner:             r.Owner,
			Name:              r.Name,
			URL:               r.URL,
			Stars:             int32(r.Stars),
			Forks:             int32(r.Forks),
			Score:             int32(r.Score),
			Tier:              string(scoring.TierFor(r.Composite())),
			ComplexityScore:   r.ComplexityScore,
			ActivityScore:     r.ActivityScore,
			SocialScore:       r.SocialScore,
			HealthScore:       r.HealthScore,
			BranchesCount:     int32(r.BranchesCount),
			CommitsCount:      int32(r.CommitsCount),
			ContributorsCount: int32(r.ContributorsCount),
			RecentCommits7d:   int32(r.RecentCommits7d),
			ExportedAt:        exportedAt,
		}
		if r.Language != "" {
			lang := r.Language
			row.Language = &lang
		}
		if r.LastScoredAt.Valid {
			t := r.LastScoredAt.Time
			row.LastScoredAt = &t
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteLeaderboardParquet writes rows to a Parquet file at outputPath.
func WriteLeaderboardParquet(rows []LeaderboardRow, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[LeaderboardRow](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Sync()
}
