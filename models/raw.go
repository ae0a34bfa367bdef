package models

import (
	"strings"
	"time"
)

// RawRepository is the repository snapshot returned by the GitHub fetcher.
// Commits are ordered most recent first and bounded by the fetch window.
type RawRepository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	Watchers      int       `json:"watchers_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DefaultBranch string    `json:"default_branch"`
	Branches      []Branch  `json:"branches"`
	Commits       []Commit  `json:"commits"`
}

// Owner returns the owner segment of FullName.
func (r *RawRepository) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Branch is a branch of a fetched repository.
type Branch struct {
	Name      string `json:"name"`
	HeadSHA   string `json:"head_sha"`
	Protected bool   `json:"protected"`
}

// Commit is a commit of a fetched repository.
type Commit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorLogin string    `json:"author_login,omitempty"`
	Date        time.Time `json:"date"`
}

// Identity returns the login when present, otherwise the display name.
func (c Commit) Identity() string {
	if c.AuthorLogin != "" {
		return c.AuthorLogin
	}
	return c.AuthorName
}
