package scoring

import "fmt"

// Tier is an ordinal bucket of the composite score.
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// tierThresholds are inclusive lower bounds, highest first.
var tierThresholds = []struct {
	min   float64
	tier  Tier
	color string
}{
	{85, TierS, "from-green-500 to-emerald-600"},
	{70, TierA, "from-blue-500 to-cyan-600"},
	{55, TierB, "from-yellow-500 to-orange-600"},
	{40, TierC, "from-orange-500 to-red-600"},
}

const tierDColor = "from-red-500 to-red-700"

// TierFor maps a composite score to its tier.
func TierFor(score float64) Tier {
	for _, t := range tierThresholds {
		if score >= t.min {
			return t.tier
		}
	}
	return TierD
}

// TierColor returns the UI gradient token for a composite score.
func TierColor(score float64) string {
	for _, t := range tierThresholds {
		if score >= t.min {
			return t.color
		}
	}
	return tierDColor
}

// FormatDisplay renders the final score as "NN/100".
func FormatDisplay(c Components) string {
	return fmt.Sprintf("%d/100", c.Final)
}
