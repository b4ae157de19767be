package contributions

import "encoding/json"

// ChainNode is a contribution annotated with its distance from the chain root.
type ChainNode struct {
	Contribution
	Depth int
}

type chainNodeRecord struct {
	contributionRecord
	Depth int `json:"depth"`
}

// MarshalJSON encodes the flat record with an added depth field.
func (n ChainNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(chainNodeRecord{contributionRecord: newRecord(n.Contribution), Depth: n.Depth})
}

// Chain is the pre-order traversal of every contribution reachable from a root.
//
// The root is found by ascending parent links from the requested contribution. A dangling
// parent reference makes the current record the root. When the ascent reaches a parent it
// has already visited, the current record is used as the root even though it may not be the
// top of the cyclic structure; the descent then re-derives everything reachable from it.
type Chain struct {
	RootID string
	Nodes  []ChainNode
	// SkippedEdges counts child links that pointed at an already emitted contribution.
	// It is zero for a well-formed forest.
	SkippedEdges int
}

// ChainSummary aggregates display statistics over a chain.
type ChainSummary struct {
	Total        int
	MaxDepth     int
	Contributors int
}

// Summary computes the total count, maximum depth and distinct contributor count.
func (c Chain) Summary() ChainSummary {
	summary := ChainSummary{Total: len(c.Nodes)}
	contributors := make(map[string]struct{}, len(c.Nodes))
	for _, node := range c.Nodes {
		if node.Depth > summary.MaxDepth {
			summary.MaxDepth = node.Depth
		}
		contributors[node.Contributor] = struct{}{}
	}
	summary.Contributors = len(contributors)
	return summary
}

// chainIndex is built once per query from the flat collection.
type chainIndex struct {
	items    []Contribution
	byID     map[string]int
	children map[string][]int
}

func newChainIndex(items []Contribution) chainIndex {
	index := chainIndex{
		items:    items,
		byID:     make(map[string]int, len(items)),
		children: make(map[string][]int),
	}
	for position, item := range items {
		if _, exists := index.byID[item.ID]; !exists {
			index.byID[item.ID] = position
		}
		if item.HasParent() {
			index.children[item.ParentContributionID] = append(index.children[item.ParentContributionID], position)
		}
	}
	return index
}

// ascend walks parent links from start and returns the resolved root position and hop count.
func (index chainIndex) ascend(start int) (int, int) {
	current := start
	hops := 0
	visited := map[string]struct{}{index.items[start].ID: {}}
	for {
		item := index.items[current]
		if !item.HasParent() {
			return current, hops
		}
		parent, ok := index.byID[item.ParentContributionID]
		if !ok {
			return current, hops
		}
		parentID := index.items[parent].ID
		if _, seen := visited[parentID]; seen {
			return current, hops
		}
		visited[parentID] = struct{}{}
		current = parent
		hops++
	}
}

type chainFrame struct {
	position int
	depth    int
}

func (index chainIndex) descend(root int) ([]ChainNode, int) {
	nodes := make([]ChainNode, 0)
	skipped := 0
	emitted := map[string]struct{}{index.items[root].ID: {}}
	stack := []chainFrame{{position: root, depth: 0}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		item := index.items[frame.position]
		nodes = append(nodes, ChainNode{Contribution: item, Depth: frame.depth})

		kids := index.children[item.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			childID := index.items[kids[i]].ID
			if _, seen := emitted[childID]; seen {
				skipped++
				continue
			}
			emitted[childID] = struct{}{}
			stack = append(stack, chainFrame{position: kids[i], depth: frame.depth + 1})
		}
	}
	return nodes, skipped
}

// BuildChain reconstructs the depth-annotated chain containing id. An unknown id yields an empty chain.
func BuildChain(items []Contribution, id string) Chain {
	index := newChainIndex(items)
	start, ok := index.byID[id]
	if !ok {
		return Chain{Nodes: []ChainNode{}}
	}
	root, _ := index.ascend(start)
	nodes, skipped := index.descend(root)
	return Chain{
		RootID:       index.items[root].ID,
		Nodes:        nodes,
		SkippedEdges: skipped,
	}
}

// AncestryDepth counts resolvable parent hops from id to its root, using the chain ascent policy.
func AncestryDepth(items []Contribution, id string) (int, bool) {
	index := newChainIndex(items)
	start, ok := index.byID[id]
	if !ok {
		return 0, false
	}
	_, hops := index.ascend(start)
	return hops, true
}
