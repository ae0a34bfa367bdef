// Package caption generates short social captions for a repository
// visualization through an OpenAI-compatible chat completions API.
package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"reposcore/config"
	"reposcore/graph"
	"reposcore/logger"
)

// FallbackCaption is shown when no caption could be generated.
const FallbackCaption = "Code visualization complete!"

// MaxLength is the caption length limit in characters.
const MaxLength = 100

const (
	maxTokens   = 100
	temperature = 0.8
)

// Caption errors
var (
	ErrDisabled     = errors.New("caption generation is not configured")
	ErrEmptyCaption = errors.New("caption generation returned no text")
)

// Client calls the chat completions endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a caption client from cfg.
func NewClient(cfg config.CaptionConfig) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caption base URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid caption base URL scheme %q", u.Scheme)
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Prompt builds the caption prompt for md.
func Prompt(md graph.Metadata) string {
	name := md.RepoName
	if name == "" {
		name = "Unknown"
	}
	language := md.Language
	if language == "" {
		language = "Unknown"
	}

	return fmt.Sprintf(`Generate a creative, engaging caption for a GitHub repository visualization.

Repository: %[1]s
Language: %[2]s
Stars: %[3]d
Branches: %[4]d
Commits: %[5]d

The visualization shows this repository as a neural network or code tree. Create a caption that:
- Is creative and engaging (max %[6]d characters)
- Mentions the repository name
- Uses relevant emojis
- Could work well for social media sharing
- Captures the essence of "code coming alive"

Examples of good captions:
- "Watching %[1]s come alive! 🧠⚡️"
- "Code neurons firing in %[1]s 🧠✨"
- "The brain of %[1]s visualized 🧠🌳"

Generate ONE caption:`, name, language, md.Stars, md.TotalBranches, md.TotalCommits, MaxLength)
}

// Generate asks the model for a caption describing md. The result is trimmed
// and cut to MaxLength characters.
func (c *Client) Generate(ctx context.Context, md graph.Metadata) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: Prompt(md)}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling caption API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Caption API returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.model),
			logger.Repo(md.RepoName))
		return "", fmt.Errorf("caption API error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing caption response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCaption
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	text = strings.Trim(text, `"`)
	if text == "" {
		return "", ErrEmptyCaption
	}

	caption := truncate(text, MaxLength)
	logger.Debug("Caption generated", logger.Repo(md.RepoName), zap.Int("length", len([]rune(caption))))
	return caption, nil
}

// GenerateOrFallback returns a generated caption, or FallbackCaption and
// false when generation fails.
func (c *Client) GenerateOrFallback(ctx context.Context, md graph.Metadata) (string, bool) {
	text, err := c.Generate(ctx, md)
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			logger.Warn("Caption generation failed, using fallback", logger.Repo(md.RepoName), zap.Error(err))
		}
		return FallbackCaption, false
	}
	return text, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
