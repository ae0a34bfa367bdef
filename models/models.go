// Package models defines the core data structures used throughout the application.
package models

import (
	"database/sql"
	"time"
)

// VisualizationMode is the way a repository was rendered for a user.
type VisualizationMode string

const (
	ModeBrain VisualizationMode = "brain"
	ModeTree  VisualizationMode = "tree"
)

// Valid reports whether m is one of the known modes.
func (m VisualizationMode) Valid() bool {
	return m == ModeBrain || m == ModeTree
}

// Repository is a scored repository row. FullName is the natural key.
type Repository struct {
	ID           string        `db:"id" json:"id"`
	GitHubRepoID sql.NullInt64 `db:"github_repo_id" json:"-"`
	Owner        string        `db:"owner" json:"owner"`
	Name         string        `db:"name" json:"name"`
	FullName     string        `db:"full_name" json:"full_name"`
	URL          string        `db:"url" json:"url"`
	Description  string        `db:"description" json:"description"`
	Language     string        `db:"language" json:"language"`
	Stars        int           `db:"stars" json:"stars"`
	Forks        int           `db:"forks" json:"forks"`
	Watchers     int           `db:"watchers" json:"watchers"`

	Score           int     `db:"score" json:"score"`
	ComplexityScore float64 `db:"complexity_score" json:"complexity_score"`
	ActivityScore   float64 `db:"activity_score" json:"activity_score"`
	SocialScore     float64 `db:"social_score" json:"social_score"`
	HealthScore     float64 `db:"health_score" json:"health_score"`

	BranchesCount     int `db:"branches_count" json:"branches_count"`
	CommitsCount      int `db:"commits_count" json:"commits_count"`
	ContributorsCount int `db:"contributors_count" json:"contributors_count"`
	RecentCommits7d   int `db:"recent_commits_7d" json:"recent_commits_7d"`

	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	LastScoredAt sql.NullTime `db:"last_scored_at" json:"-"`
}

// Composite returns the unrounded mean of the stored sub-scores.
func (r Repository) Composite() float64 {
	return (r.ComplexityScore + r.ActivityScore + r.SocialScore + r.HealthScore) / 4
}

// UserVisualization is an append-only record of one visualization action.
// Scores are the values observed at the time of the event.
type UserVisualization struct {
	ID                string            `db:"id" json:"id"`
	UserID            string            `db:"user_id" json:"user_id"`
	RepositoryID      string            `db:"repository_id" json:"repository_id"`
	RepoScore         int               `db:"repo_score" json:"repo_score"`
	ComplexityScore   float64           `db:"complexity_score" json:"complexity_score"`
	ActivityScore     float64           `db:"activity_score" json:"activity_score"`
	SocialScore       float64           `db:"social_score" json:"social_score"`
	HealthScore       float64           `db:"health_score" json:"health_score"`
	VisualizationMode VisualizationMode `db:"visualization_mode" json:"visualization_mode"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
}

// RankedRepository is a leaderboard entry.
type RankedRepository struct {
	Repository
	Rank int `json:"rank"`
}

// VisualizationHistory is a visualization joined with its repository.
type VisualizationHistory struct {
	UserVisualization
	Repository Repository `db:"repository" json:"repositories"`
}

// RepositoryWithStats is a repository plus the number of times it was visualized.
type RepositoryWithStats struct {
	Repository
	VisualizationCount int `db:"visualization_count" json:"visualization_count"`
}

// PaginationParams represents limit/offset parameters for ranked listings
type PaginationParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPaginationParams creates a new PaginationParams with validated values.
// A limit below 1 falls back to defaultLimit and is capped at maxLimit;
// a negative offset becomes 0.
func NewPaginationParams(limit, offset, defaultLimit, maxLimit int) PaginationParams {
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
