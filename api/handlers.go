package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"reposcore/caption"
	"reposcore/graph"
	"reposcore/leaderboard"
	"reposcore/logger"
	"reposcore/models"
	"reposcore/service"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/github/process?repo=URL
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	repoURL := strings.TrimSpace(r.URL.Query().Get("repo"))
	if repoURL == "" {
		writeError(w, http.StatusBadRequest, "Repo URL is required")
		return
	}

	res, err := h.viz.Visualize(r.Context(), repoURL)
	if err != nil {
		fail(w, r, err, "Failed to process repository")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type visualizeRequest struct {
	Repo string                   `json:"repo"`
	Mode models.VisualizationMode `json:"mode"`
}

type visualizeResponse struct {
	*service.Result
	Recorded      bool                      `json:"recorded"`
	Visualization *models.UserVisualization `json:"visualization,omitempty"`
}

// POST /api/visualizations
func (h *Handler) handleVisualize(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}

	var req visualizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Repo) == "" {
		writeError(w, http.StatusBadRequest, "Repo URL is required")
		return
	}

	res, v, err := h.viz.VisualizeAndRecord(r.Context(), userID, req.Repo, req.Mode)
	if err != nil {
		fail(w, r, err, "Failed to record visualization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    visualizeResponse{Result: res, Recorded: v != nil, Visualization: v},
	})
}

type leaderboardResponse struct {
	Success bool `json:"success"`
	*leaderboard.Page
}

// GET /api/leaderboard?limit&offset
func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.board.TopRepositories(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		fail(w, r, err, "Failed to fetch leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Success: true, Page: page})
}

// recordRequest is a client-scored visualization. Either RepositoryID or
// FullName identifies the repository.
type recordRequest struct {
	RepositoryID      string                   `json:"repository_id"`
	GitHubRepoID      int64                    `json:"github_repo_id"`
	FullName          string                   `json:"full_name"`
	Owner             string                   `json:"owner"`
	Name              string                   `json:"name"`
	URL               string                   `json:"url"`
	Description       string                   `json:"description"`
	Language          string                   `json:"language"`
	Stars             int                      `json:"stars"`
	Forks             int                      `json:"forks"`
	VisualizationMode models.VisualizationMode `json:"visualization_mode"`
	RepoScore         *int                     `json:"repo_score"`
	ComplexityScore   float64                  `json:"complexity_score"`
	ActivityScore     float64                  `json:"activity_score"`
	SocialScore       float64                  `json:"social_score"`
	HealthScore       float64                  `json:"health_score"`
	BranchesCount     int                      `json:"branches_count"`
	CommitsCount      int                      `json:"commits_count"`
}

func (req recordRequest) input(userID string) leaderboard.RecordInput {
	in := leaderboard.RecordInput{
		UserID:          userID,
		Mode:            req.VisualizationMode,
		RepositoryID:    strings.TrimSpace(req.RepositoryID),
		RepoScore:       *req.RepoScore,
		ComplexityScore: req.ComplexityScore,
		ActivityScore:   req.ActivityScore,
		SocialScore:     req.SocialScore,
		HealthScore:     req.HealthScore,
	}
	if in.RepositoryID == "" {
		in.Repository = models.Repository{
			FullName:      strings.TrimSpace(req.FullName),
			Owner:         req.Owner,
			Name:          req.Name,
			URL:           req.URL,
			Description:   req.Description,
			Language:      req.Language,
			Stars:         req.Stars,
			Forks:         req.Forks,
			BranchesCount: req.BranchesCount,
			CommitsCount:  req.CommitsCount,
		}
		if req.GitHubRepoID > 0 {
			in.Repository.GitHubRepoID.Int64 = req.GitHubRepoID
			in.Repository.GitHubRepoID.Valid = true
		}
	}
	return in
}

// POST /api/leaderboard
func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}

	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VisualizationMode == "" || req.RepoScore == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	v, err := h.board.RecordVisualization(r.Context(), req.input(userID))
	if err != nil {
		fail(w, r, err, "Failed to record visualization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": v})
}

// GET /api/leaderboard/user?limit
func (h *Handler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}

	history, err := h.board.UserHistory(r.Context(), userID, queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err, "Failed to fetch user history")
		return
	}
	if history == nil {
		history = []models.VisualizationHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": history, "count": len(history)})
}

// GET /api/repositories/search?q&limit
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	repos, err := h.board.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err, "Failed to search repositories")
		return
	}
	if repos == nil {
		repos = []models.Repository{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": repos, "count": len(repos)})
}

// GET /api/repositories/{owner}/{name}
func (h *Handler) handleRepository(w http.ResponseWriter, r *http.Request) {
	fullName := fmt.Sprintf("%s/%s", r.PathValue("owner"), r.PathValue("name"))

	repo, err := h.board.Stats(r.Context(), fullName)
	if err != nil {
		fail(w, r, err, "Failed to fetch repository")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": repo})
}

type captionRequest struct {
	Metadata *graph.Metadata `json:"metadata"`
	RepoData *struct {
		Metadata *graph.Metadata `json:"metadata"`
	} `json:"repoData"`
}

func (req captionRequest) metadata() *graph.Metadata {
	if req.Metadata != nil {
		return req.Metadata
	}
	if req.RepoData != nil {
		return req.RepoData.Metadata
	}
	return nil
}

type captionResponse struct {
	Caption  string `json:"caption"`
	Fallback bool   `json:"fallback"`
}

// POST /api/ai/caption
func (h *Handler) handleCaption(w http.ResponseWriter, r *http.Request) {
	var req captionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	md := req.metadata()
	if md == nil {
		writeError(w, http.StatusBadRequest, "Repository data is required")
		return
	}

	if h.captions == nil {
		writeJSON(w, http.StatusOK, captionResponse{Caption: caption.FallbackCaption, Fallback: true})
		return
	}
	text, ok := h.captions.GenerateOrFallback(r.Context(), *md)
	writeJSON(w, http.StatusOK, captionResponse{Caption: text, Fallback: !ok})
}
