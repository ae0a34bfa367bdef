package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"reposcore/caption"
	"reposcore/config"
	"reposcore/db"
	"reposcore/fetcher"
	"reposcore/github"
	"reposcore/leaderboard"
	"reposcore/logger"
	"reposcore/models"
	"reposcore/scoring"
)

const shutdownTimeout = 10 * time.Second

// Recorder persists scores and visualizations.
type Recorder interface {
	RecordScored(ctx context.Context, userID string, mode models.VisualizationMode, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.UserVisualization, error)
	SaveScore(ctx context.Context, raw *models.RawRepository, res scoring.Result, scoredAt time.Time) (*models.Repository, error)
}

// StaleLister lists repositories whose score is older than a cutoff and
// records rescore attempts that did not refresh the row.
type StaleLister interface {
	StaleRepositories(ctx context.Context, before time.Time, limit int) ([]models.Repository, error)
	MarkRescoreAttempt(ctx context.Context, id string, at time.Time) error
}

// Service errors
var (
	ErrServiceInit     = fmt.Errorf("service initialization error")
	ErrServiceShutdown = fmt.Errorf("service shutdown error")
	ErrNotConfigured   = errors.New("persistence is not configured")
)

// Service represents the main application service
type Service struct {
	config   *config.Config
	database *db.DB
	board    *leaderboard.Service
	captions *caption.Client

	client   fetcher.GitHubClientInterface
	recorder Recorder
	stale    StaleLister

	now        func() time.Time
	schedule   string
	staleAfter time.Duration
	cron       *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises a Service built with New.
type Option func(*Service)

// WithClock replaces the wall clock used for scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRescore sets the cron schedule of the rescoring job and the age after
// which a score counts as stale. An empty schedule disables the job.
func WithRescore(schedule string, staleAfter time.Duration) Option {
	return func(s *Service) {
		s.schedule = schedule
		s.staleAfter = staleAfter
	}
}

// New builds a service over its collaborators. recorder and stale may be nil
// when only Visualize is used.
func New(client fetcher.GitHubClientInterface, recorder Recorder, stale StaleLister, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		client:     client,
		recorder:   recorder,
		stale:      stale,
		now:        time.Now,
		staleAfter: 24 * time.Hour,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewService wires the database, GitHub client, leaderboard and caption
// client described by cfg.
func NewService(cfg *config.Config) (*Service, error) {
	database, err := db.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize database: %v", ErrServiceInit, err)
	}

	client, err := github.NewClient(cfg.GitHub)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to initialize GitHub client: %v", ErrServiceInit, err)
	}

	captions, err := caption.NewClient(cfg.Caption)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to initialize caption client: %v", ErrServiceInit, err)
	}

	board := leaderboard.NewService(database)
	s := New(client, board, database, WithRescore(cfg.RescoreSchedule, cfg.RescoreStaleAfter))
	s.config = cfg
	s.database = database
	s.board = board
	s.captions = captions

	logger.Info("Service initialized successfully",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("authenticated_github", cfg.GitHub.Token != ""),
		zap.Bool("captions_enabled", captions.Enabled()),
		zap.String("rescore_schedule", cfg.RescoreSchedule))

	return s, nil
}

// Leaderboard returns the leaderboard service, or nil for a service built with New.
func (s *Service) Leaderboard() *leaderboard.Service {
	return s.board
}

// Captions returns the caption client, or nil for a service built with New.
func (s *Service) Captions() *caption.Client {
	return s.captions
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	if s.database == nil {
		return ErrNotConfigured
	}
	return s.database.Ping(ctx)
}

// Start starts the rescoring schedule and serves handler on the configured
// address until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Service) Start(handler http.Handler) error {
	addr := ":8080"
	if s.config != nil && s.config.HTTPAddr != "" {
		addr = s.config.HTTPAddr
	}

	if err := s.startScheduler(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if err := s.waitForShutdown(errCh); err != nil {
		s.cancel()
		s.stopScheduler()
		return fmt.Errorf("%w: http server: %v", ErrServiceInit, err)
	}

	s.cancel()
	s.stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceShutdown, err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// waitForShutdown blocks until a shutdown signal, service cancellation or a
// server error. It returns the server error, if any.
func (s *Service) waitForShutdown(errCh <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case <-s.ctx.Done():
	}
	return nil
}

// Close performs cleanup operations
func (s *Service) Close() error {
	logger.Info("Closing service")
	s.cancel()
	s.stopScheduler()
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			return fmt.Errorf("%w: failed to close database: %v", ErrServiceShutdown, err)
		}
	}
	return nil
}
