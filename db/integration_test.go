//go:build database

package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"reposcore/config"
	"reposcore/models"
)

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "reposcore",
			"POSTGRES_PASSWORD": "secret123",
			"POSTGRES_DB":       "reposcore",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:            host,
		Port:            port.Port(),
		User:            "reposcore",
		Password:        "secret123",
		Name:            "reposcore",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Minute,
	}
}

func TestPostgresLeaderboardFlow(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(cfg, -1))
	// Running again is a no-op.
	require.NoError(t, Migrate(cfg, -1))

	database, err := New(cfg)
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Ping(ctx))

	repo := models.Repository{
		GitHubRepoID: sql.NullInt64{Int64: 10270250, Valid: true},
		Owner:        "facebook",
		Name:         "react",
		FullName:     "facebook/react",
		URL:          "https://github.com/facebook/react",
		Language:     "JavaScript",
		Stars:        220000,
		Score:        81,
	}

	first, v, err := database.RecordVisualization(ctx, repo, models.UserVisualization{
		UserID:            "user-1",
		RepoScore:         81,
		VisualizationMode: models.ModeBrain,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, v.RepositoryID)

	// Same full name updates in place and keeps the id.
	repo.Score = 83
	repo.LastScoredAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	second, err := database.UpsertRepository(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 83, second.Score)

	other := models.Repository{Owner: "golang", Name: "go", FullName: "golang/go", URL: "https://github.com/golang/go", Score: 90}
	_, err = database.UpsertRepository(ctx, other)
	require.NoError(t, err)

	top, err := database.TopRepositories(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "golang/go", top[0].FullName)

	history, err := database.UserVisualizations(ctx, "user-1", 20)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "facebook/react", history[0].Repository.FullName)

	stats, err := database.GetRepositoryWithStats(ctx, "facebook/react")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VisualizationCount)

	found, err := database.SearchRepositories(ctx, "REACT", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	stale, err := database.StaleRepositories(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "golang/go", stale[0].FullName, "never-scored repositories come first")

	_, err = database.GetByFullName(ctx, "nobody/nothing")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)

	require.NoError(t, Migrate(cfg, 0))
}

func TestPostgresConcurrentUpsertSingleRow(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, Migrate(cfg, -1))

	database, err := New(cfg)
	require.NoError(t, err)
	defer database.Close()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := database.UpsertRepository(ctx, models.Repository{
				Owner: "acme", Name: "widget", FullName: "acme/widget",
				URL: "https://github.com/acme/widget", Score: i * 10,
			})
			if assert.NoError(t, err, fmt.Sprintf("upsert %d", i)) {
				ids[i] = stored.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	top, err := database.TopRepositories(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestPostgresUpsertUpdatesStarCount(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, Migrate(cfg, -1))

	database, err := New(cfg)
	require.NoError(t, err)
	defer database.Close()

	react := models.Repository{Owner: "facebook", Name: "react", FullName: "facebook/react",
		URL: "https://github.com/facebook/react", Stars: 100, Score: 70}
	golang := models.Repository{Owner: "golang", Name: "go", FullName: "golang/go",
		URL: "https://github.com/golang/go", Stars: 500, Score: 90}

	first, err := database.UpsertRepository(ctx, react)
	require.NoError(t, err)
	other, err := database.UpsertRepository(ctx, golang)
	require.NoError(t, err)

	react.Stars = 250
	second, err := database.UpsertRepository(ctx, react)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 250, second.Stars)

	stored, err := database.GetByFullName(ctx, "facebook/react")
	require.NoError(t, err)
	assert.Equal(t, 250, stored.Stars)

	untouched, err := database.GetByFullName(ctx, "golang/go")
	require.NoError(t, err)
	assert.Equal(t, other.ID, untouched.ID)
	assert.Equal(t, 500, untouched.Stars)
	assert.Equal(t, 90, untouched.Score)
	assert.True(t, other.UpdatedAt.Equal(untouched.UpdatedAt))

	top, err := database.TopRepositories(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestPostgresRescoreAttemptDefersRepository(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, Migrate(cfg, -1))

	database, err := New(cfg)
	require.NoError(t, err)
	defer database.Close()

	longAgo := sql.NullTime{Time: time.Now().Add(-72 * time.Hour).UTC(), Valid: true}
	gone, err := database.UpsertRepository(ctx, models.Repository{Owner: "acme", Name: "gone",
		FullName: "acme/gone", URL: "https://github.com/acme/gone"})
	require.NoError(t, err)
	_, err = database.UpsertRepository(ctx, models.Repository{Owner: "acme", Name: "live",
		FullName: "acme/live", URL: "https://github.com/acme/live", LastScoredAt: longAgo})
	require.NoError(t, err)

	before := time.Now().Add(-24 * time.Hour)
	stale, err := database.StaleRepositories(ctx, before, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "acme/gone", stale[0].FullName)

	require.NoError(t, database.MarkRescoreAttempt(ctx, gone.ID, time.Now()))

	stale, err = database.StaleRepositories(ctx, before, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "acme/live", stale[0].FullName)
}
