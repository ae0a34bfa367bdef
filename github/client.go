package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"reposcore/config"
	"reposcore/logger"
	"reposcore/models"
)

// Fetch errors
var (
	ErrFetchFailed  = errors.New("failed to fetch repository data")
	ErrNotFound     = errors.New("repository not found on GitHub")
	ErrRateLimited  = errors.New("GitHub rate limit exceeded")
	ErrInvalidInput = errors.New("invalid input")
)

// Client represents a GitHub API client
type Client struct {
	gh              *gogithub.Client
	branchesPerPage int
	commitsPerPage  int
}

// NewClient creates a client from cfg. An empty token gives anonymous access.
func NewClient(cfg config.GitHubConfig) (*Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = cfg.Timeout
	}
	gh := gogithub.NewClient(httpClient)

	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}

	logger.Info("Initializing GitHub client",
		zap.String("base_url", gh.BaseURL.String()),
		zap.Bool("authenticated", cfg.Token != ""))

	return &Client{
		gh:              gh,
		branchesPerPage: cfg.BranchesPerPage,
		commitsPerPage:  cfg.CommitsPerPage,
	}, nil
}

// FetchRepoData fetches repository info, the first page of branches and the
// most recent commits on the default branch.
func (c *Client) FetchRepoData(ctx context.Context, owner, name string) (*models.RawRepository, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and name cannot be empty", ErrInvalidInput)
	}

	raw, err := c.FetchRepo(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	if raw.Branches, err = c.FetchBranches(ctx, owner, name); err != nil {
		return nil, err
	}
	if raw.Commits, err = c.FetchCommits(ctx, owner, name, raw.DefaultBranch); err != nil {
		return nil, err
	}

	logger.Info("Successfully fetched repository data",
		logger.Repo(raw.FullName),
		zap.Int("branches", len(raw.Branches)),
		zap.Int("commits", len(raw.Commits)))

	return raw, nil
}

// FetchRepo fetches repository information without branches or commits.
func (c *Client) FetchRepo(ctx context.Context, owner, name string) (*models.RawRepository, error) {
	logger.Debug("Fetching repository", zap.String("owner", owner), zap.String("name", name))

	r, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.wrapError("repository", owner, name, err)
	}

	return &models.RawRepository{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetWatchersCount(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		DefaultBranch: r.GetDefaultBranch(),
	}, nil
}

// FetchBranches fetches the first page of branches.
func (c *Client) FetchBranches(ctx context.Context, owner, name string) ([]models.Branch, error) {
	opts := &gogithub.BranchListOptions{
		ListOptions: gogithub.ListOptions{PerPage: c.branchesPerPage},
	}
	branches, _, err := c.gh.Repositories.ListBranches(ctx, owner, name, opts)
	if err != nil {
		return nil, c.wrapError("branches", owner, name, err)
	}

	out := make([]models.Branch, 0, len(branches))
	for _, b := range branches {
		if b == nil {
			continue
		}
		out = append(out, models.Branch{
			Name:      b.GetName(),
			HeadSHA:   b.GetCommit().GetSHA(),
			Protected: b.GetProtected(),
		})
	}
	return out, nil
}

// FetchCommits fetches the most recent commits on ref, newest first.
// An empty repository yields no commits rather than an error.
func (c *Client) FetchCommits(ctx context.Context, owner, name, ref string) ([]models.Commit, error) {
	opts := &gogithub.CommitsListOptions{
		SHA:         ref,
		ListOptions: gogithub.ListOptions{PerPage: c.commitsPerPage},
	}
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			logger.Info("Repository has no commits", zap.String("owner", owner), zap.String("name", name))
			return nil, nil
		}
		return nil, c.wrapError("commits", owner, name, err)
	}

	out := make([]models.Commit, 0, len(commits))
	for _, rc := range commits {
		if rc == nil {
			continue
		}
		author := rc.GetCommit().GetAuthor()
		out = append(out, models.Commit{
			SHA:         rc.GetSHA(),
			Message:     rc.GetCommit().GetMessage(),
			AuthorName:  author.GetName(),
			AuthorLogin: rc.GetAuthor().GetLogin(),
			Date:        author.GetDate().Time,
		})
	}
	return out, nil
}

// wrapError classifies a go-github error and logs it.
func (c *Client) wrapError(what, owner, name string, err error) error {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("owner", owner),
		zap.String("name", name),
		zap.String("resource", what),
	}

	var rateErr *gogithub.RateLimitError
	var abuseErr *gogithub.AbuseRateLimitError
	var respErr *gogithub.ErrorResponse
	switch {
	case errors.As(err, &rateErr):
		logger.Warn("GitHub rate limit exceeded",
			append(fields, zap.Int("limit", rateErr.Rate.Limit), zap.Time("reset_time", rateErr.Rate.Reset.Time))...)
		return fmt.Errorf("%w: %w: fetching %s for %s/%s", ErrFetchFailed, ErrRateLimited, what, owner, name)
	case errors.As(err, &abuseErr):
		logger.Warn("GitHub secondary rate limit hit", append(fields, zap.Duration("retry_after", abuseErr.GetRetryAfter()))...)
		return fmt.Errorf("%w: %w: fetching %s for %s/%s", ErrFetchFailed, ErrRateLimited, what, owner, name)
	case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound:
		logger.Warn("Repository not found", fields...)
		return fmt.Errorf("%w: %w: %s/%s", ErrFetchFailed, ErrNotFound, owner, name)
	default:
		logger.Error("Failed to fetch from GitHub", fields...)
		return fmt.Errorf("%w: fetching %s for %s/%s: %v", ErrFetchFailed, what, owner, name, err)
	}
}
