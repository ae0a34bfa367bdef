package scoring

import (
	"math"

	"reposcore/models"
)

const dayLayout = "2006-01-02"

// CommitSpread measures how evenly commits are spread across the UTC calendar
// days they fall on: 1 - min(cv, 1), where cv = stddev / (mean + 1) of the
// per-day counts. It depends only on the per-day counts and is 0 for no commits.
func CommitSpread(commits []models.Commit) float64 {
	if len(commits) == 0 {
		return 0
	}

	perDay := make(map[string]int)
	for _, c := range commits {
		perDay[c.Date.UTC().Format(dayLayout)]++
	}

	days := float64(len(perDay))
	mean := float64(len(commits)) / days

	var sumSq float64
	for _, n := range perDay {
		d := float64(n) - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / days)

	cv := stddev / (mean + 1)
	return math.Max(0, 1-math.Min(cv, 1))
}
