package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"reposcore/logger"
	"reposcore/models"
)

var (
	insertVisualizationQuery = `
		INSERT INTO user_visualizations (
			id, user_id, repository_id, repo_score,
			complexity_score, activity_score, social_score, health_score,
			visualization_mode
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + columns(visualizationFields, "")

	userVisualizationsQuery = `
		SELECT ` + columns(visualizationFields, "v") + `, ` + nestedColumns(repositoryFields, "r", "repository") + `
		FROM user_visualizations v
		JOIN repositories r ON r.id = v.repository_id
		WHERE v.user_id = $1
		ORDER BY v.created_at DESC
		LIMIT $2`
)

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row.
const foreignKeyViolation = pq.ErrorCode("23503")

func validateVisualization(v models.UserVisualization, needRepositoryID bool) error {
	if v.UserID == "" {
		return fmt.Errorf("%w: user id cannot be empty", ErrInvalidInput)
	}
	if needRepositoryID {
		if v.RepositoryID == "" {
			return fmt.Errorf("%w: repository id cannot be empty", ErrInvalidInput)
		}
		if _, err := uuid.Parse(v.RepositoryID); err != nil {
			return fmt.Errorf("%w: repository id %q is not a valid id", ErrInvalidInput, v.RepositoryID)
		}
	}
	if !v.VisualizationMode.Valid() {
		return fmt.Errorf("%w: unknown visualization mode %q", ErrInvalidInput, v.VisualizationMode)
	}
	if v.RepoScore < 0 || v.RepoScore > 100 {
		return fmt.Errorf("%w: repo score %d out of range", ErrInvalidInput, v.RepoScore)
	}
	return nil
}

// InsertVisualization appends a visualization event for an existing repository.
func (db *DB) InsertVisualization(ctx context.Context, v models.UserVisualization) (*models.UserVisualization, error) {
	if err := validateVisualization(v, true); err != nil {
		return nil, err
	}
	return insertVisualization(ctx, db.conn, v)
}

func insertVisualization(ctx context.Context, q sqlx.QueryerContext, v models.UserVisualization) (*models.UserVisualization, error) {
	var stored models.UserVisualization
	err := sqlx.GetContext(ctx, q, &stored, insertVisualizationQuery,
		uuid.NewString(), v.UserID, v.RepositoryID, v.RepoScore,
		v.ComplexityScore, v.ActivityScore, v.SocialScore, v.HealthScore,
		v.VisualizationMode,
	)
	if err != nil {
		logger.Error("Failed to insert visualization",
			zap.String("user_id", v.UserID),
			zap.String("repository_id", v.RepositoryID),
			zap.Error(err))
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, v.RepositoryID)
		}
		return nil, fmt.Errorf("failed to insert visualization: %w", err)
	}

	safeLogInfo("Visualization recorded",
		zap.String("user_id", stored.UserID),
		zap.String("repository_id", stored.RepositoryID),
		zap.String("mode", string(stored.VisualizationMode)))
	return &stored, nil
}

// RecordVisualization upserts repo and appends v for it in one transaction.
// If the upsert fails nothing is inserted and the error wraps ErrUpsertFailed.
func (db *DB) RecordVisualization(ctx context.Context, repo models.Repository, v models.UserVisualization) (*models.Repository, *models.UserVisualization, error) {
	if err := validateRepository(repo); err != nil {
		return nil, nil, err
	}
	if err := validateVisualization(v, false); err != nil {
		return nil, nil, err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	stored, err := upsertRepository(ctx, tx, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}

	v.RepositoryID = stored.ID
	inserted, err := insertVisualization(ctx, tx, v)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}
	return stored, inserted, nil
}

// UserVisualizations returns a user's most recent visualizations joined with
// their repositories, newest first.
func (db *DB) UserVisualizations(ctx context.Context, userID string, limit int) ([]models.VisualizationHistory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", ErrInvalidInput)
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, userVisualizationsQuery)
	if err != nil {
		return nil, err
	}

	history := []models.VisualizationHistory{}
	if err := stmt.SelectContext(ctx, &history, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list visualizations for user %s: %w", userID, err)
	}
	return history, nil
}
