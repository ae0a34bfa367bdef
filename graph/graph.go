// Package graph turns a fetched repository into the star-shaped node/link
// graph consumed by the renderer. Every non-root node links into the root.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reposcore/models"
)

const (
	// RootID is the id of the single root node in every graph.
	RootID    = "main"
	RootSize  = 8
	RootColor = "#00ffaa"

	CommitColor       = "#ffffff"
	CommitSize        = 1
	MaxCommitNodes    = 10
	CommitLabelLength = 30
	shortSHALength    = 7

	minBranchSize = 2
	maxBranchSize = 6

	mergeKeyword = "merge"
)

// ErrEmptyRepository is returned when a repository has no branches.
var ErrEmptyRepository = errors.New("repository has no branches")

// NodeType is the kind of a graph node.
type NodeType string

const (
	NodeRoot   NodeType = "root"
	NodeBranch NodeType = "branch"
	NodeCommit NodeType = "commit"
)

// LinkType is the kind of a graph link.
type LinkType string

const (
	LinkMerge  LinkType = "merge"
	LinkCommit LinkType = "commit"
)

// NodeMetadata carries optional per-node details.
type NodeMetadata struct {
	Commits    *int       `json:"commits,omitempty"`
	LastCommit *time.Time `json:"lastCommit,omitempty"`
	Author     string     `json:"author,omitempty"`
}

// Node is a graph vertex.
type Node struct {
	ID       string        `json:"id"`
	Size     int           `json:"size"`
	Color    string        `json:"color"`
	Type     NodeType      `json:"type"`
	Label    string        `json:"label"`
	Metadata *NodeMetadata `json:"metadata,omitempty"`
}

// Link connects two nodes of the same graph.
type Link struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight int      `json:"weight"`
	Type   LinkType `json:"type"`
}

// Metadata summarises the repository the graph was built from.
// TotalCommits is the size of the fetched commit window, not the lifetime count.
type Metadata struct {
	RepoName      string    `json:"repoName"`
	TotalBranches int       `json:"totalBranches"`
	TotalCommits  int       `json:"totalCommits"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Language      string    `json:"language"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
}

// Graph is the renderable structure.
type Graph struct {
	Nodes    []Node   `json:"nodes"`
	Links    []Link   `json:"links"`
	Metadata Metadata `json:"metadata"`
}

// Transform builds the graph for raw. It fails only when raw has no branches.
func Transform(raw *models.RawRepository) (*Graph, error) {
	if raw == nil || len(raw.Branches) == 0 {
		return nil, ErrEmptyRepository
	}

	b := newBuilder()

	root := defaultBranch(raw)
	total := len(raw.Commits)
	rootMeta := &NodeMetadata{Commits: &total}
	if total > 0 {
		last := raw.Commits[0].Date
		rootMeta.LastCommit = &last
	}
	b.addNode(Node{
		ID:       RootID,
		Size:     RootSize,
		Color:    RootColor,
		Type:     NodeRoot,
		Label:    root.Name,
		Metadata: rootMeta,
	})

	for i, branch := range raw.Branches {
		if branch.Name == root.Name {
			continue
		}
		related := relevantCommits(raw.Commits, branch.Name)
		count := len(related)
		meta := &NodeMetadata{Commits: &count}
		if count > 0 {
			last := related[0].Date
			meta.LastCommit = &last
		}
		id := b.addNode(Node{
			ID:       branch.Name,
			Size:     clamp(count, minBranchSize, maxBranchSize),
			Color:    BranchColor(i),
			Type:     NodeBranch,
			Label:    branch.Name,
			Metadata: meta,
		})
		// Weight is floored at 1 so every link stays positive.
		b.link(id, max(count, 1), LinkMerge)
	}

	for _, c := range raw.Commits[:min(MaxCommitNodes, total)] {
		date := c.Date
		id := b.addNode(Node{
			ID:    "commit-" + shortSHA(c.SHA),
			Size:  CommitSize,
			Color: CommitColor,
			Type:  NodeCommit,
			Label: commitLabel(c.Message),
			Metadata: &NodeMetadata{
				Author:     c.Identity(),
				LastCommit: &date,
			},
		})
		b.link(id, 1, LinkCommit)
	}

	return &Graph{
		Nodes: b.nodes,
		Links: b.links,
		Metadata: Metadata{
			RepoName:      raw.FullName,
			TotalBranches: len(raw.Branches),
			TotalCommits:  total,
			LastUpdated:   raw.UpdatedAt,
			Language:      raw.Language,
			Stars:         raw.Stars,
			Forks:         raw.Forks,
		},
	}, nil
}

// defaultBranch returns the branch named raw.DefaultBranch, or the first branch.
func defaultBranch(raw *models.RawRepository) models.Branch {
	for _, b := range raw.Branches {
		if b.Name == raw.DefaultBranch {
			return b
		}
	}
	return raw.Branches[0]
}

// relevantCommits returns the commits whose message mentions the branch name
// or the word "merge", case-insensitively. Order is preserved.
func relevantCommits(commits []models.Commit, branch string) []models.Commit {
	name := strings.ToLower(branch)
	var out []models.Commit
	for _, c := range commits {
		msg := strings.ToLower(c.Message)
		if strings.Contains(msg, name) || strings.Contains(msg, mergeKeyword) {
			out = append(out, c)
		}
	}
	return out
}

func commitLabel(msg string) string {
	r := []rune(msg)
	if len(r) > CommitLabelLength {
		r = r[:CommitLabelLength]
	}
	return string(r) + "..."
}

func shortSHA(sha string) string {
	if len(sha) > shortSHALength {
		return sha[:shortSHALength]
	}
	return sha
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// builder accumulates nodes and links and keeps node ids unique.
type builder struct {
	nodes []Node
	links []Link
	seen  map[string]struct{}
}

func newBuilder() *builder {
	return &builder{seen: make(map[string]struct{})}
}

// addNode appends n, suffixing its id when it collides with an existing node,
// and returns the id actually used.
func (b *builder) addNode(n Node) string {
	id := n.ID
	for i := 2; ; i++ {
		if _, taken := b.seen[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", n.ID, i)
	}
	n.ID = id
	b.seen[id] = struct{}{}
	b.nodes = append(b.nodes, n)
	return id
}

func (b *builder) link(source string, weight int, kind LinkType) {
	b.links = append(b.links, Link{
		Source: source,
		Target: RootID,
		Weight: weight,
		Type:   kind,
	})
}
