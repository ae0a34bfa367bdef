package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"reposcore/fetcher"
	"reposcore/graph"
	"reposcore/leaderboard"
	"reposcore/logger"
	"reposcore/models"
	"reposcore/scoring"
)

// Result is one visualization of a repository. Score is nil when the graph
// is a fallback.
type Result struct {
	Graph     *graph.Graph    `json:"graph"`
	Score     *scoring.Result `json:"score,omitempty"`
	Tier      scoring.Tier    `json:"tier,omitempty"`
	TierColor string          `json:"tierColor,omitempty"`
	Display   string          `json:"display,omitempty"`
	Degraded  bool            `json:"degraded"`

	Raw      *models.RawRepository `json:"-"`
	ScoredAt time.Time             `json:"-"`
}

// Visualize fetches, transforms and scores the repository at repoURL. Only an
// unparseable URL is an error; fetch failures and empty repositories yield
// the fallback graph without a score.
func (s *Service) Visualize(ctx context.Context, repoURL string) (*Result, error) {
	owner, name, err := fetcher.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	fullName := owner + "/" + name
	log := logger.With(logger.Repo(fullName))

	raw, err := s.client.FetchRepoData(ctx, owner, name)
	if err != nil {
		log.Warn("Fetch failed, serving fallback graph", zap.Error(err))
		return &Result{Graph: graph.Fallback(fullName), Degraded: true}, nil
	}

	g, err := graph.Transform(raw)
	if errors.Is(err, graph.ErrEmptyRepository) {
		log.Info("Repository has no branches, serving fallback graph")
		return &Result{Graph: graph.Fallback(raw.FullName), Degraded: true, Raw: raw}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build graph for %s: %w", fullName, err)
	}

	now := s.now()
	res := scoring.Score(raw, now)
	log.Info("Repository scored",
		zap.Int("score", res.Components.Final),
		zap.Int("branches", res.Metadata.Branches),
		zap.Int("commits", res.Metadata.Commits))

	return &Result{
		Graph:     g,
		Score:     &res,
		Tier:      scoring.TierFor(res.Components.Composite),
		TierColor: scoring.TierColor(res.Components.Composite),
		Display:   scoring.FormatDisplay(res.Components),
		Raw:       raw,
		ScoredAt:  now,
	}, nil
}

// VisualizeAndRecord visualizes repoURL for userID and records the
// visualization when a score was produced. A fallback result is returned
// with a nil visualization.
func (s *Service) VisualizeAndRecord(ctx context.Context, userID, repoURL string, mode models.VisualizationMode) (*Result, *models.UserVisualization, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", leaderboard.ErrValidation)
	}
	if !mode.Valid() {
		return nil, nil, fmt.Errorf("%w: invalid visualization mode %q", leaderboard.ErrValidation, mode)
	}
	if s.recorder == nil {
		return nil, nil, ErrNotConfigured
	}

	res, err := s.Visualize(ctx, repoURL)
	if err != nil {
		return nil, nil, err
	}
	if res.Score == nil {
		return res, nil, nil
	}

	v, err := s.recorder.RecordScored(ctx, userID, mode, res.Raw, *res.Score, res.ScoredAt)
	if err != nil {
		return nil, nil, err
	}
	return res, v, nil
}
