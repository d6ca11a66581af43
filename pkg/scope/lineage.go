package scope

import "github.com/wisbric/confcore/internal/apperr"

// indexByID builds a node_id -> Node lookup for a single org's node set.
func indexByID(nodes []Node) map[string]Node {
	idx := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		idx[n.NodeID] = n
	}
	return idx
}

// Lineage walks parent_id upward from nodeID and returns the chain ordered
// root-first, self-last. maxDepth bounds the walk; exceeding it indicates a
// cycle in stored data, which is a fatal invariant violation rather than an
// ordinary request error.
func Lineage(nodes []Node, nodeID string, maxDepth int) ([]Node, error) {
	idx := indexByID(nodes)

	current, ok := idx[nodeID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "node not found")
	}

	chain := []Node{current}
	seen := map[string]bool{current.NodeID: true}

	for current.ParentID != nil {
		if len(chain) > maxDepth {
			return nil, apperr.Newf(apperr.TamperDetected, "lineage exceeds max depth %d: cycle suspected in stored data", maxDepth)
		}
		parent, ok := idx[*current.ParentID]
		if !ok {
			return nil, apperr.Newf(apperr.TamperDetected, "lineage references missing parent %q", *current.ParentID)
		}
		if seen[parent.NodeID] {
			return nil, apperr.New(apperr.TamperDetected, "cycle detected in stored node tree")
		}
		chain = append(chain, parent)
		seen[parent.NodeID] = true
		current = parent
	}

	// chain was built leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descendants returns the set of node_ids reachable downward from nodeID
// (not including nodeID itself).
func Descendants(nodes []Node, nodeID string) map[string]bool {
	childrenOf := make(map[string][]string)
	for _, n := range nodes {
		if n.ParentID != nil {
			childrenOf[*n.ParentID] = append(childrenOf[*n.ParentID], n.NodeID)
		}
	}

	out := map[string]bool{}
	queue := append([]string{}, childrenOf[nodeID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if out[id] {
			continue
		}
		out[id] = true
		queue = append(queue, childrenOf[id]...)
	}
	return out
}

// WouldCreateCycle reports whether reparenting nodeID under newParentID
// would create a cycle: true if newParentID is nodeID itself or a
// descendant of nodeID.
func WouldCreateCycle(nodes []Node, nodeID, newParentID string) bool {
	if nodeID == newParentID {
		return true
	}
	return Descendants(nodes, nodeID)[newParentID]
}
