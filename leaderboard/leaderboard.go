// Package leaderboard records scored repositories and user visualizations and
// serves ranked listings over a persistence store.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reposcore/db"
	"reposcore/logger"
	"reposcore/models"
	"reposcore/scoring"
)

// Listing limits
const (
	DefaultTopLimit     = 50
	DefaultHistoryLimit = 20
	DefaultSearchLimit  = 20
	MaxLimit            = 100
	MaxOffset           = 5000
)

// Leaderboard errors
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("repository not found")
)

// Store is the persistence collaborator.
type Store interface {
	UpsertRepository(ctx context.Context, repo models.Repository) (*models.Repository, error)
	InsertVisualization(ctx context.Context, v models.UserVisualization) (*models.UserVisualization, error)
	RecordVisualization(ctx context.Context, repo models.Repository, v models.UserVisualization) (*models.Repository, *models.UserVisualization, error)
	TopRepositories(ctx context.Context, limit int) ([]models.Repository, error)
	UserVisualizations(ctx context.Context, userID string, limit int) ([]models.VisualizationHistory, error)
	GetByFullName(ctx context.Context, fullName string) (*models.Repository, error)
	SearchRepositories(ctx context.Context, query string, limit int) ([]models.Repository, error)
	GetRepositoryWithStats(ctx context.Context, fullName string) (*models.RepositoryWithStats, error)
}

// Service implements the leaderboard operations.
type Service struct {
	store Store
}

// NewService creates a leaderboard service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// RecordInput describes one visualization to record. Either RepositoryID
// names an already stored repository, or Repository carries at least a
// FullName and is upserted first.
type RecordInput struct {
	UserID       string
	Mode         models.VisualizationMode
	RepositoryID string
	Repository   models.Repository

	RepoScore       int
	ComplexityScore float64
	ActivityScore   float64
	SocialScore     float64
	HealthScore     float64
}

// Page is one window of the ranked leaderboard.
type Page struct {
	Data   []models.RankedRepository `json:"data"`
	Total  int                       `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func validScore(v float64) bool {
	return v >= 0 && v <= 100
}

func (in RecordInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return validationError("user id is required")
	}
	if !in.Mode.Valid() {
		return validationError("visualization mode must be %q or %q", models.ModeBrain, models.ModeTree)
	}
	if in.RepoScore < 0 || in.RepoScore > 100 {
		return validationError("repo score %d out of range", in.RepoScore)
	}
	for _, s := range []float64{in.ComplexityScore, in.ActivityScore, in.SocialScore, in.HealthScore} {
		if !validScore(s) {
			return validationError("component score %v out of range", s)
		}
	}
	if in.RepositoryID != "" {
		if _, err := uuid.Parse(in.RepositoryID); err != nil {
			return validationError("repository id %q is not a valid id", in.RepositoryID)
		}
	} else {
		owner, name, ok := strings.Cut(in.Repository.FullName, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return validationError("repository id or full name owner/name is required")
		}
	}
	return nil
}

func (in RecordInput) visualization() models.UserVisualization {
	return models.UserVisualization{
		UserID:            in.UserID,
		RepositoryID:      in.RepositoryID,
		RepoScore:         in.RepoScore,
		ComplexityScore:   in.ComplexityScore,
		ActivityScore:     in.ActivityScore,
		SocialScore:       in.SocialScore,
		HealthScore:       in.HealthScore,
		VisualizationMode: in.Mode,
	}
}

// repository fills the row to upsert, deriving owner, name and URL from the
// full name when they are missing. The scores are the recorded ones.
func (in RecordInput) repository() models.Repository {
	repo := in.Repository
	owner, name, _ := strings.Cut(repo.FullName, "/")
	if repo.Owner == "" {
		repo.Owner = owner
	}
	if repo.Name == "" {
		repo.Name = name
	}
	if repo.URL == "" {
		repo.URL = "https://github.com/" + repo.FullName
	}
	repo.Score = in.RepoScore
	repo.ComplexityScore = in.ComplexityScore
	repo.ActivityScore = in.ActivityScore
	repo.SocialScore = in.SocialScore
	repo.HealthScore = in.HealthScore
	return repo
}

// RecordVisualization validates in and records it. A repository given by
// full name is upserted and the visualization inserted as one unit; a failed
// upsert means nothing is inserted.
func (s *Service) RecordVisualization(ctx context.Context, in RecordInput) (*models.UserVisualization, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	log := logger.With(zap.String("user_id", in.UserID), zap.String("mode", string(in.Mode)))

	if in.RepositoryID != "" {
		v, err := s.store.InsertVisualization(ctx, in.visualization())
		if err != nil {
			log.Error("Failed to record visualization", zap.String("repository_id", in.RepositoryID), zap.Error(err))
			return nil, translate(err)
		}
		return v, nil
	}

	repo, v, err := s.store.RecordVisualization(ctx, in.repository(), in.visualization())
	if err != nil {
		log.Error("Failed to record visualization", logger.Repo(in.Repository.FullName), zap.Error(err))
		return nil, translate(err)
	}

	log.Info("Visualization recorded", logger.Repo(repo.FullName), zap.Int("score", v.RepoScore))
	return v, nil
}

// RepositoryFromScore builds the repository row for fetched data and its score.
func RepositoryFromScore(raw *models.RawRepository, res scoring.Result, scoredAt time.Time) models.Repository {
	repo := models.Repository{
		Owner:       raw.Owner(),
		Name:        raw.Name,
		FullName:    raw.FullName,
		URL:         "https://github.com/" + raw.FullName,
		Description: raw.Description,
		Language:    raw.Language,
		Stars:       raw.Stars,
		Forks:       raw.Forks,
		Watchers:    raw.Watchers,

		Score:           res.Components.Final,
		ComplexityScore: res.Components.Complexity,
		ActivityScore:   res.Components.Activity,
		SocialScore:     res.Components.Social,
		HealthScore:     res.Components.Health,

		BranchesCount:     res.Metadata.Branches,
		CommitsCount:      res.Metadata.Commits,
		ContributorsCount: res.Metadata.Contributors,
		RecentCommits7d:   res.Metadata.RecentCommits7d,

		LastScoredAt: sql.NullTime{Time: scoredAt, Valid: !scoredAt.IsZero()},
	}
	if raw.ID > 0 {
		repo.GitHubRepoID = sql.NullInt64{Int64: raw.ID, Valid: true}
	}
	return repo
}

// RecordScored records a visualization of freshly fetched and scored data.
func (s *Service) RecordScored(ctx context.Context, userID string, mode models.VisualizationMode, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.UserVisualization, error) {
	if raw == nil {
		return nil, validationError("repository data is required")
	}
	return s.RecordVisualization(ctx, RecordInput{
		UserID:          userID,
		Mode:            mode,
		Repository:      RepositoryFromScore(raw, res, scoredAt),
		RepoScore:       res.Components.Final,
		ComplexityScore: res.Components.Complexity,
		ActivityScore:   res.Components.Activity,
		SocialScore:     res.Components.Social,
		HealthScore:     res.Components.Health,
	})
}

// SaveScore upserts a scored repository without recording a visualization.
func (s *Service) SaveScore(ctx context.Context, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.Repository, error) {
	if raw == nil || raw.FullName == "" {
		return nil, validationError("repository data is required")
	}
	repo, err := s.store.UpsertRepository(ctx, RepositoryFromScore(raw, res, scoredAt))
	if err != nil {
		logger.Error("Failed to save score", logger.Repo(raw.FullName), zap.Error(err))
		return nil, translate(err)
	}
	return repo, nil
}

// TopRepositories returns one ranked window of the leaderboard. Ranks are
// 1-based over the whole limit+offset window, so rank = offset+i+1. Offsets
// beyond MaxOffset are rejected.
func (s *Service) TopRepositories(ctx context.Context, limit, offset int) (*Page, error) {
	if offset > MaxOffset {
		return nil, validationError("offset %d exceeds maximum of %d", offset, MaxOffset)
	}
	p := models.NewPaginationParams(limit, offset, DefaultTopLimit, MaxLimit)

	repos, err := s.store.TopRepositories(ctx, p.Limit+p.Offset)
	if err != nil {
		logger.Error("Failed to fetch leaderboard", zap.Int("limit", p.Limit), zap.Int("offset", p.Offset), zap.Error(err))
		return nil, translate(err)
	}

	page := &Page{
		Data:   []models.RankedRepository{},
		Total:  len(repos),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if p.Offset >= len(repos) {
		return page, nil
	}
	end := min(p.Offset+p.Limit, len(repos))
	for i, repo := range repos[p.Offset:end] {
		page.Data = append(page.Data, models.RankedRepository{
			Repository: repo,
			Rank:       p.Offset + i + 1,
		})
	}
	return page, nil
}

// UserHistory returns a user's most recent visualizations.
func (s *Service) UserHistory(ctx context.Context, userID string, limit int) ([]models.VisualizationHistory, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user id is required")
	}
	p := models.NewPaginationParams(limit, 0, DefaultHistoryLimit, MaxLimit)

	history, err := s.store.UserVisualizations(ctx, userID, p.Limit)
	if err != nil {
		logger.Error("Failed to fetch user history", zap.String("user_id", userID), zap.Error(err))
		return nil, translate(err)
	}
	return history, nil
}

// Find looks a repository up by full name.
func (s *Service) Find(ctx context.Context, fullName string) (*models.Repository, error) {
	if fullName == "" {
		return nil, validationError("full name is required")
	}
	repo, err := s.store.GetByFullName(ctx, fullName)
	if err != nil {
		return nil, translate(err)
	}
	return repo, nil
}

// Search matches query against repository owners and names.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Repository, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("search query is required")
	}
	p := models.NewPaginationParams(limit, 0, DefaultSearchLimit, MaxLimit)

	repos, err := s.store.SearchRepositories(ctx, query, p.Limit)
	if err != nil {
		logger.Error("Failed to search repositories", zap.String("query", query), zap.Error(err))
		return nil, translate(err)
	}
	return repos, nil
}

// Stats returns a repository with its visualization count.
func (s *Service) Stats(ctx context.Context, fullName string) (*models.RepositoryWithStats, error) {
	if fullName == "" {
		return nil, validationError("full name is required")
	}
	repo, err := s.store.GetRepositoryWithStats(ctx, fullName)
	if err != nil {
		return nil, translate(err)
	}
	return repo, nil
}

// translate maps store errors onto leaderboard errors, keeping the cause.
func translate(err error) error {
	switch {
	case errors.Is(err, db.ErrRepositoryNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, db.ErrInvalidInput):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
