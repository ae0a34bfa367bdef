package fetcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reposcore/models"
)

// ErrInvalidRepoURL is returned when a repository reference cannot be parsed.
var ErrInvalidRepoURL = errors.New("invalid GitHub repository URL")

// GitHubClientInterface is the repository source used to visualize and rescore.
type GitHubClientInterface interface {
	FetchRepoData(ctx context.Context, owner, name string) (*models.RawRepository, error)
}

// GitHub owner and repository name rules, relaxed to what the API accepts.
var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// ParseRepoURL extracts owner and name from a GitHub repository reference.
// Accepted forms: https://github.com/owner/name[.git][/...],
// github.com/owner/name and owner/name.
func ParseRepoURL(s string) (owner, name string, err error) {
	ref := strings.TrimSpace(s)
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	ref = strings.TrimPrefix(ref, "www.")

	if host, rest, ok := strings.Cut(ref, "/"); ok && strings.Contains(host, ".") {
		if !strings.EqualFold(host, "github.com") {
			return "", "", fmt.Errorf("%w: %q is not a github.com URL", ErrInvalidRepoURL, s)
		}
		ref = rest
	}

	ref, _, _ = strings.Cut(ref, "?")
	ref, _, _ = strings.Cut(ref, "#")
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, s)
	}

	owner = parts[0]
	name = strings.TrimSuffix(parts[1], ".git")
	if !ownerPattern.MatchString(owner) || !namePattern.MatchString(name) || name == "." || name == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, s)
	}
	return owner, name, nil
}
