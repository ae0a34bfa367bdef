// Package scoring reduces a fetched repository to four 0-100 sub-scores and
// an equally weighted composite. Every term is capped on its own before the
// terms are summed, so no single signal can dominate a sub-score.
package scoring

import (
	"math"
	"time"

	"reposcore/models"
)

const (
	maxScore = 100.0

	// RecentWindow is the trailing window counted as recent activity.
	RecentWindow = 7 * 24 * time.Hour
)

// Components are the sub-scores and the composite score.
// Composite keeps the unrounded mean; Final is its rounded value.
type Components struct {
	Complexity float64 `json:"complexity_score"`
	Activity   float64 `json:"activity_score"`
	Social     float64 `json:"social_score"`
	Health     float64 `json:"health_score"`
	Composite  float64 `json:"composite_score"`
	Final      int     `json:"final_score"`
}

// Metadata are the counters derived from the fetched window.
type Metadata struct {
	Branches        int `json:"branches_count"`
	Commits         int `json:"commits_count"`
	Contributors    int `json:"contributors_count"`
	RecentCommits7d int `json:"recent_commits_7d"`
}

// Result is the output of Score.
type Result struct {
	Components Components `json:"score"`
	Metadata   Metadata   `json:"metadata"`
}

// Score evaluates raw as of now.
func Score(raw *models.RawRepository, now time.Time) Result {
	meta := Metadata{
		Branches:        len(raw.Branches),
		Commits:         len(raw.Commits),
		Contributors:    contributorCount(raw.Commits),
		RecentCommits7d: recentCommitCount(raw.Commits, now),
	}

	c := Components{
		Complexity: complexityScore(meta),
		Activity:   activityScore(meta),
		Social:     socialScore(raw.Stars, raw.Forks),
		Health:     healthScore(raw, now),
	}
	c.Composite = clampScore(0.25*c.Complexity + 0.25*c.Activity + 0.25*c.Social + 0.25*c.Health)
	c.Final = int(math.Round(c.Composite))

	return Result{Components: c, Metadata: meta}
}

func complexityScore(m Metadata) float64 {
	branches := float64(m.Branches)
	commits := float64(m.Commits)

	branchTerm := math.Min(40, branches*3)
	commitTerm := math.Min(40, commits/100*40)
	densityTerm := math.Min(20, branches/math.Max(commits, 1)*20)

	return clampScore(branchTerm + commitTerm + densityTerm)
}

func activityScore(m Metadata) float64 {
	recentTerm := math.Min(40, float64(m.RecentCommits7d)*5)
	historicalTerm := math.Min(35, float64(m.Commits)/1000*35)
	contributorTerm := math.Min(25, math.Sqrt(float64(m.Contributors))*5)

	return clampScore(recentTerm + historicalTerm + contributorTerm)
}

func socialScore(stars, forks int) float64 {
	starTerm := math.Min(60, math.Log10(float64(max(stars, 0))+1)*15)
	forkTerm := math.Min(40, math.Log10(float64(max(forks, 0))+1)*10)

	return clampScore(starTerm + forkTerm)
}

func healthScore(raw *models.RawRepository, now time.Time) float64 {
	last := raw.UpdatedAt
	if len(raw.Commits) > 0 {
		last = raw.Commits[0].Date
	}
	days := int(math.Floor(now.Sub(last).Hours() / 24))

	consistencyTerm := CommitSpread(raw.Commits) * 30
	protectionTerm := protectedRatio(raw.Branches) * 20

	return clampScore(recencyTerm(days) + consistencyTerm + protectionTerm)
}

// recencyTerm steps down as the last commit ages.
func recencyTerm(days int) float64 {
	switch {
	case days > 365:
		return 10
	case days > 90:
		return 25
	case days > 30:
		return 40
	case days > 7:
		return 45
	default:
		return 50
	}
}

func protectedRatio(branches []models.Branch) float64 {
	if len(branches) == 0 {
		return 0
	}
	protected := 0
	for _, b := range branches {
		if b.Protected {
			protected++
		}
	}
	return float64(protected) / float64(len(branches))
}

func contributorCount(commits []models.Commit) int {
	seen := make(map[string]struct{})
	for _, c := range commits {
		if id := c.Identity(); id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func recentCommitCount(commits []models.Commit, now time.Time) int {
	cutoff := now.Add(-RecentWindow)
	n := 0
	for _, c := range commits {
		if c.Date.After(cutoff) {
			n++
		}
	}
	return n
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(maxScore, v))
}
