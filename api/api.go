// Package api serves the visualization, leaderboard and caption endpoints.
// Authentication happens upstream: a proxy sets the configured user header.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"reposcore/graph"
	"reposcore/leaderboard"
	"reposcore/logger"
	"reposcore/models"
	"reposcore/service"
)

// DefaultUserHeader carries the authenticated user id.
const DefaultUserHeader = "X-User-ID"

// Visualizer builds and records repository visualizations.
type Visualizer interface {
	Visualize(ctx context.Context, repoURL string) (*service.Result, error)
	VisualizeAndRecord(ctx context.Context, userID, repoURL string, mode models.VisualizationMode) (*service.Result, *models.UserVisualization, error)
}

// Leaderboard serves rankings and history.
type Leaderboard interface {
	RecordVisualization(ctx context.Context, in leaderboard.RecordInput) (*models.UserVisualization, error)
	TopRepositories(ctx context.Context, limit, offset int) (*leaderboard.Page, error)
	UserHistory(ctx context.Context, userID string, limit int) ([]models.VisualizationHistory, error)
	Search(ctx context.Context, query string, limit int) ([]models.Repository, error)
	Stats(ctx context.Context, fullName string) (*models.RepositoryWithStats, error)
}

// Captioner generates share captions.
type Captioner interface {
	GenerateOrFallback(ctx context.Context, md graph.Metadata) (string, bool)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	viz        Visualizer
	board      Leaderboard
	captions   Captioner
	health     Pinger
	userHeader string
}

// NewHandler creates a Handler. captions and health may be nil.
func NewHandler(viz Visualizer, board Leaderboard, captions Captioner, health Pinger, userHeader string) *Handler {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	return &Handler{
		viz:        viz,
		board:      board,
		captions:   captions,
		health:     health,
		userHeader: userHeader,
	}
}

// Routes returns the HTTP handler for every endpoint.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /api/github/process", h.handleProcess)
	mux.HandleFunc("POST /api/visualizations", h.handleVisualize)

	mux.HandleFunc("GET /api/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("POST /api/leaderboard", h.handleRecord)
	mux.HandleFunc("GET /api/leaderboard/user", h.handleUserHistory)

	mux.HandleFunc("GET /api/repositories/search", h.handleSearch)
	mux.HandleFunc("GET /api/repositories/{owner}/{name}", h.handleRepository)

	mux.HandleFunc("POST /api/ai/caption", h.handleCaption)

	return logRequests(mux)
}

// userID returns the authenticated user, or errUnauthorized.
func (h *Handler) userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(h.userHeader))
	if id == "" {
		return "", errUnauthorized
	}
	return id, nil
}

// fail writes err with its mapped status. Server-side failures are logged and
// reported with the generic message.
func fail(w http.ResponseWriter, r *http.Request, err error, generic string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(generic, zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, generic)
		return
	}
	writeError(w, status, err.Error())
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
