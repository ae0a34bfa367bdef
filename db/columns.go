package db

import "strings"

var repositoryFields = []string{
	"id", "github_repo_id", "owner", "name", "full_name", "url",
	"description", "language", "stars", "forks", "watchers",
	"score", "complexity_score", "activity_score", "social_score", "health_score",
	"branches_count", "commits_count", "contributors_count", "recent_commits_7d",
	"created_at", "updated_at", "last_scored_at",
}

var visualizationFields = []string{
	"id", "user_id", "repository_id", "repo_score",
	"complexity_score", "activity_score", "social_score", "health_score",
	"visualization_mode", "created_at",
}

// columns renders fields qualified with alias, or bare when alias is empty.
func columns(fields []string, alias string) string {
	if alias == "" {
		return strings.Join(fields, ", ")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

// nestedColumns renders alias.field AS "prefix.field" so sqlx can scan into
// a nested struct tagged db:"prefix".
func nestedColumns(fields []string, alias, prefix string) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = alias + "." + f + ` AS "` + prefix + "." + f + `"`
	}
	return strings.Join(cols, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
