package graph

// branchPalette is indexed by branch position; the order must not change
// or repeated visualizations of a repository will change colour.
var branchPalette = [...]string{
	"#ff6b6b", // red
	"#4ecdc4", // teal
	"#45b7d1", // blue
	"#96ceb4", // green
	"#feca57", // yellow
	"#ff9ff3", // pink
	"#54a0ff", // light blue
	"#5f27cd", // purple
	"#00d2d3", // cyan
	"#ff9f43", // orange
}

// BranchColor returns the palette colour for the branch at index i.
func BranchColor(i int) string {
	n := len(branchPalette)
	return branchPalette[((i%n)+n)%n]
}
