package export

import (
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposcore/models"
)

func TestLeaderboardRowStructTags(t *testing.T) {
	schema := parquet.SchemaOf(new(LeaderboardRow))
	require.NotNil(t, schema)

	for _, colName := range []string{
		"rank", "full_name", "owner", "name", "url", "language",
		"stars", "forks", "score", "tier",
		"complexity_score", "activity_score", "social_score", "health_score",
		"branches_count", "commits_count", "contributors_count", "recent_commits_7d",
		"last_scored_at", "exported_at",
	} {
		_, ok := schema.Lookup(colName)
		assert.True(t, ok, "column %s should exist in schema", colName)
	}
}

func TestLeaderboardRows(t *testing.T) {
	scored := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	exported := scored.Add(time.Hour)

	rows := LeaderboardRows([]models.RankedRepository{
		{
			Rank: 1,
			Repository: models.Repository{
				FullName: "golang/go", Owner: "golang", Name: "go", Language: "Go",
				Score: 90, ComplexityScore: 90, ActivityScore: 90, SocialScore: 90, HealthScore: 90,
				LastScoredAt: sql.NullTime{Time: scored, Valid: true},
			},
		},
		{
			Rank:       2,
			Repository: models.Repository{FullName: "a/b", Score: 12},
		},
	}, exported)

	require.Len(t, rows, 2)
	assert.Equal(t, "S", rows[0].Tier)
	require.NotNil(t, rows[0].Language)
	assert.Equal(t, "Go", *rows[0].Language)
	require.NotNil(t, rows[0].LastScoredAt)
	assert.Equal(t, scored, *rows[0].LastScoredAt)

	assert.Equal(t, "D", rows[1].Tier)
	assert.Nil(t, rows[1].Language)
	assert.Nil(t, rows[1].LastScoredAt)
	assert.Equal(t, exported, rows[1].ExportedAt)
}

func TestWriteLeaderboardParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "leaderboard.parquet")
	lang := "Go"
	scored := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	data := []LeaderboardRow{
		{Rank: 1, FullName: "golang/go", Language: &lang, Score: 90, Tier: "S", LastScoredAt: &scored, ExportedAt: scored},
		{Rank: 2, FullName: "a/b", Score: 40, Tier: "C", ExportedAt: scored},
	}

	require.NoError(t, WriteLeaderboardParquet(data, outputPath))

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	file, err := os.Open(outputPath)
	require.NoError(t, err)
	defer file.Close()

	reader := parquet.NewGenericReader[LeaderboardRow](file)
	defer reader.Close()

	readData := make([]LeaderboardRow, reader.NumRows())
	n, err := reader.Read(readData)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, len(data), n)

	for i := range data {
		assert.Equal(t, data[i].Rank, readData[i].Rank)
		assert.Equal(t, data[i].FullName, readData[i].FullName)
		assert.Equal(t, data[i].Score, readData[i].Score)
		assert.Equal(t, data[i].Tier, readData[i].Tier)
	}
	require.NotNil(t, readData[0].Language)
	assert.Equal(t, "Go", *readData[0].Language)
	assert.Nil(t, readData[1].Language)
	assert.Nil(t, readData[1].LastScoredAt)
}

func TestWriteLeaderboardParquetBadPath(t *testing.T) {
	err := WriteLeaderboardParquet(nil, filepath.Join(t.TempDir(), "missing", "out.parquet"))
	assert.Error(t, err)
}
