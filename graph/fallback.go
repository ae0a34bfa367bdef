package graph

const (
	fallbackBranchID    = "unavailable"
	fallbackBranchLabel = "data unavailable"
)

// Fallback returns the minimal graph rendered when repository data could not
// be fetched or transformed: the root node and one synthetic branch.
func Fallback(repoName string) *Graph {
	return &Graph{
		Nodes: []Node{
			{
				ID:    RootID,
				Size:  RootSize,
				Color: RootColor,
				Type:  NodeRoot,
				Label: RootID,
			},
			{
				ID:    fallbackBranchID,
				Size:  minBranchSize,
				Color: BranchColor(0),
				Type:  NodeBranch,
				Label: fallbackBranchLabel,
			},
		},
		Links: []Link{
			{Source: fallbackBranchID, Target: RootID, Weight: 1, Type: LinkMerge},
		},
		Metadata: Metadata{RepoName: repoName},
	}
}
