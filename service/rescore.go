package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"reposcore/logger"
	"reposcore/models"
	"reposcore/scoring"
)

// rescoreBatchSize bounds the repositories refreshed per run.
const rescoreBatchSize = 100

// Rescore refreshes the scores of repositories not scored within the stale
// window, one repository at a time. A repository that fails to fetch, has no
// branches or fails to save is stamped with the attempt so it cannot hold the
// head of later batches. A repository GitHub reports under a new name is
// scored under that name and the old row is stamped. It returns the number of
// repositories rescored.
func (s *Service) Rescore(ctx context.Context) (int, error) {
	if s.stale == nil || s.recorder == nil {
		return 0, ErrNotConfigured
	}

	start := s.now()
	repos, err := s.stale.StaleRepositories(ctx, start.Add(-s.staleAfter), rescoreBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale repositories: %w", err)
	}

	rescored, skipped := 0, 0
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return rescored, fmt.Errorf("rescore cancelled: %w", err)
		}
		if s.rescoreOne(ctx, repo) {
			rescored++
		} else {
			skipped++
		}
	}

	logger.Info("Rescore complete",
		zap.Int("stale", len(repos)),
		zap.Int("rescored", rescored),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", s.now().Sub(start)))
	return rescored, nil
}

// rescoreOne reports whether repo's own row now carries a fresh score.
func (s *Service) rescoreOne(ctx context.Context, repo models.Repository) bool {
	log := logger.With(logger.Repo(repo.FullName))

	raw, err := s.client.FetchRepoData(ctx, repo.Owner, repo.Name)
	if err != nil {
		log.Warn("Skipping rescore, fetch failed", zap.Error(err))
		s.markAttempt(ctx, repo)
		return false
	}
	if len(raw.Branches) == 0 {
		log.Info("Skipping rescore, repository has no branches")
		s.markAttempt(ctx, repo)
		return false
	}

	now := s.now()
	res := scoring.Score(raw, now)
	if _, err := s.recorder.SaveScore(ctx, raw, res, now); err != nil {
		log.Error("Failed to save rescored repository", zap.Error(err))
		s.markAttempt(ctx, repo)
		return false
	}

	if raw.FullName != repo.FullName {
		log.Warn("Repository renamed on GitHub, score saved under the new name",
			zap.String("new_full_name", raw.FullName))
		s.markAttempt(ctx, repo)
		return false
	}
	return true
}

func (s *Service) markAttempt(ctx context.Context, repo models.Repository) {
	if err := s.stale.MarkRescoreAttempt(ctx, repo.ID, s.now()); err != nil {
		logger.Error("Failed to record rescore attempt", logger.Repo(repo.FullName), zap.Error(err))
	}
}

func (s *Service) runRescore() {
	if _, err := s.Rescore(s.ctx); err != nil {
		logger.Error("Scheduled rescore failed", zap.Error(err))
	}
}

// startScheduler registers the rescoring job when a schedule is configured.
// Runs never overlap.
func (s *Service) startScheduler() error {
	if s.schedule == "" {
		logger.Info("Rescoring schedule not configured")
		return nil
	}

	cl := cronLogger{log: logger.With(zap.String("component", "cron")).Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(s.schedule, s.runRescore); err != nil {
		return fmt.Errorf("%w: invalid rescore schedule %q: %v", ErrServiceInit, s.schedule, err)
	}
	c.Start()
	s.cron = c

	logger.Info("Rescoring scheduled",
		zap.String("schedule", s.schedule),
		zap.Duration("stale_after", s.staleAfter),
		zap.Time("next_run", s.nextRun()))
	return nil
}

func (s *Service) stopScheduler() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}

// nextRun reports when the rescoring job fires next, or the zero time.
func (s *Service) nextRun() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
