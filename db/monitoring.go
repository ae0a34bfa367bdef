package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reposcore/logger"
	"reposcore/models"
)

// A repository is due once neither a score nor a rescore attempt falls inside
// the window. GREATEST skips NULL arguments and is NULL only for rows never
// scored or attempted.
var (
	staleRepositoriesQuery = `
	SELECT ` + columns(repositoryFields, "") + `
	FROM repositories
	WHERE GREATEST(last_scored_at, rescore_attempted_at) IS NULL
	   OR GREATEST(last_scored_at, rescore_attempted_at) < $1
	ORDER BY GREATEST(last_scored_at, rescore_attempted_at) ASC NULLS FIRST, full_name ASC
	LIMIT $2`

	markRescoreAttemptQuery = `
	UPDATE repositories SET rescore_attempted_at = $2 WHERE id = $1`
)

// StaleRepositories returns repositories never scored or last scored before
// the given time, least recently touched first. A repository whose last
// rescore attempt is newer than before is left out.
func (db *DB) StaleRepositories(ctx context.Context, before time.Time, limit int) ([]models.Repository, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	repos := []models.Repository{}
	if err := db.conn.SelectContext(ctx, &repos, staleRepositoriesQuery, before, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch repositories for rescoring: %w", err)
	}

	safeLogInfo("Found repositories due for rescoring",
		zap.Int("count", len(repos)),
		zap.Time("scored_before", before))
	return repos, nil
}

// MarkRescoreAttempt stamps a rescore attempt on the repository so it moves
// behind the other stale repositories until the next window.
func (db *DB) MarkRescoreAttempt(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return fmt.Errorf("%w: repository id cannot be empty", ErrInvalidInput)
	}

	res, err := db.conn.ExecContext(ctx, markRescoreAttemptQuery, id, at)
	if err != nil {
		logger.Error("Failed to mark rescore attempt", zap.String("repository_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark rescore attempt for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
	}
	return nil
}
