package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"reposcore/logger"
	"reposcore/models"
)

var (
	upsertRepositoryQuery = `
		INSERT INTO repositories (
			id, github_repo_id, owner, name, full_name, url,
			description, language, stars, forks, watchers,
			score, complexity_score, activity_score, social_score, health_score,
			branches_count, commits_count, contributors_count, recent_commits_7d,
			last_scored_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (full_name) DO UPDATE SET
			github_repo_id = COALESCE(EXCLUDED.github_repo_id, repositories.github_repo_id),
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			description = EXCLUDED.description,
			language = EXCLUDED.language,
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			watchers = EXCLUDED.watchers,
			score = EXCLUDED.score,
			complexity_score = EXCLUDED.complexity_score,
			activity_score = EXCLUDED.activity_score,
			social_score = EXCLUDED.social_score,
			health_score = EXCLUDED.health_score,
			branches_count = EXCLUDED.branches_count,
			commits_count = EXCLUDED.commits_count,
			contributors_count = EXCLUDED.contributors_count,
			recent_commits_7d = EXCLUDED.recent_commits_7d,
			last_scored_at = COALESCE(EXCLUDED.last_scored_at, repositories.last_scored_at),
			updated_at = NOW()
		RETURNING ` + columns(repositoryFields, "")

	getByFullNameQuery = `SELECT ` + columns(repositoryFields, "") + ` FROM repositories WHERE full_name = $1`

	topRepositoriesQuery = `
		SELECT ` + columns(repositoryFields, "") + `
		FROM repositories
		ORDER BY score DESC, full_name ASC
		LIMIT $1`

	searchRepositoriesQuery = `
		SELECT ` + columns(repositoryFields, "") + `
		FROM repositories
		WHERE owner ILIKE $1 OR name ILIKE $1
		ORDER BY score DESC, full_name ASC
		LIMIT $2`

	repositoryWithStatsQuery = `
		SELECT ` + columns(repositoryFields, "r") + `, COUNT(v.id) AS visualization_count
		FROM repositories r
		LEFT JOIN user_visualizations v ON v.repository_id = r.id
		WHERE r.full_name = $1
		GROUP BY r.id`
)

func validateRepository(repo models.Repository) error {
	if repo.FullName == "" || repo.Owner == "" || repo.Name == "" {
		return fmt.Errorf("%w: repository owner, name and full name cannot be empty", ErrInvalidInput)
	}
	if repo.Score < 0 || repo.Score > 100 {
		return fmt.Errorf("%w: score %d out of range", ErrInvalidInput, repo.Score)
	}
	return nil
}

// UpsertRepository inserts repo or, when its full name already exists,
// merges the new metadata and scores into the existing row. The stored row
// is returned, so the id is stable across upserts.
func (db *DB) UpsertRepository(ctx context.Context, repo models.Repository) (*models.Repository, error) {
	if err := validateRepository(repo); err != nil {
		return nil, err
	}

	stored, err := upsertRepository(ctx, db.conn, repo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}
	return stored, nil
}

func upsertRepository(ctx context.Context, q sqlx.QueryerContext, repo models.Repository) (*models.Repository, error) {
	safeLogInfo("Upserting repository", logger.Repo(repo.FullName), zap.Int("score", repo.Score))

	var stored models.Repository
	err := sqlx.GetContext(ctx, q, &stored, upsertRepositoryQuery,
		uuid.NewString(), repo.GitHubRepoID, repo.Owner, repo.Name, repo.FullName, repo.URL,
		repo.Description, repo.Language, repo.Stars, repo.Forks, repo.Watchers,
		repo.Score, repo.ComplexityScore, repo.ActivityScore, repo.SocialScore, repo.HealthScore,
		repo.BranchesCount, repo.CommitsCount, repo.ContributorsCount, repo.RecentCommits7d,
		repo.LastScoredAt,
	)
	if err != nil {
		logger.Error("Failed to upsert repository", logger.Repo(repo.FullName), zap.Error(err))
		return nil, fmt.Errorf("failed to upsert repository %s: %w", repo.FullName, err)
	}
	return &stored, nil
}

// GetByFullName retrieves a repository by its owner/name full name
func (db *DB) GetByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	if fullName == "" {
		return nil, fmt.Errorf("%w: repository full name cannot be empty", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, getByFullNameQuery)
	if err != nil {
		return nil, err
	}

	var repo models.Repository
	if err := stmt.GetContext(ctx, &repo, fullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: repository %s not found", ErrRepositoryNotFound, fullName)
		}
		return nil, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}
	return &repo, nil
}

// TopRepositories returns the limit highest-scored repositories, best first.
// Ties are ordered by full name.
func (db *DB) TopRepositories(ctx context.Context, limit int) ([]models.Repository, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, topRepositoriesQuery)
	if err != nil {
		return nil, err
	}

	repos := []models.Repository{}
	if err := stmt.SelectContext(ctx, &repos, limit); err != nil {
		return nil, fmt.Errorf("failed to list top repositories: %w", err)
	}
	return repos, nil
}

// SearchRepositories matches query case-insensitively against owner or name.
func (db *DB) SearchRepositories(ctx context.Context, query string, limit int) ([]models.Repository, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", ErrInvalidInput)
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	repos := []models.Repository{}
	if err := db.conn.SelectContext(ctx, &repos, searchRepositoriesQuery, containsPattern(query), limit); err != nil {
		return nil, fmt.Errorf("failed to search repositories: %w", err)
	}
	return repos, nil
}

// GetRepositoryWithStats returns a repository with its visualization count.
func (db *DB) GetRepositoryWithStats(ctx context.Context, fullName string) (*models.RepositoryWithStats, error) {
	if fullName == "" {
		return nil, fmt.Errorf("%w: repository full name cannot be empty", ErrInvalidInput)
	}

	var repo models.RepositoryWithStats
	if err := db.conn.GetContext(ctx, &repo, repositoryWithStatsQuery, fullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: repository %s not found", ErrRepositoryNotFound, fullName)
		}
		return nil, fmt.Errorf("failed to get repository statistics: %w", err)
	}
	return &repo, nil
}
