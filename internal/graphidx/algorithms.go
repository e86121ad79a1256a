package graphidx

import "rserv/internal/apperr"

// Aggregation names one of the aggregation functions neighborhoodAggregate
// supports, per §4.8.
type Aggregation string

const (
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// PathStep is one hop of a path result: the edge traversed to reach Node
// (Label is empty for the start node).
type PathStep struct {
	Label string
	Node  NodeRef
}

// undirectedNeighbors returns node's neighbours across the union of its
// outbound and inbound edges, per §4.8's "BFS on undirected union of
// in+out edges" traversal rule.
func (idx *Index) undirectedNeighbors(node NodeRef) []Edge {
	edges := idx.Outbound(node.Entity, node.ID, nil)
	return append(edges, idx.Inbound(node.Entity, node.ID, nil)...)
}

// ShortestPath runs an unweighted BFS from start to end over the
// undirected union of in+out edges, bounded to exactly maxDepth hops,
// and returns the first (therefore shortest) path found.
func (idx *Index) ShortestPath(start, end NodeRef, maxDepth int) ([]PathStep, bool) {
	if start == end {
		return []PathStep{{Node: start}}, true
	}

	type frontierNode struct {
		node NodeRef
		path []PathStep
	}

	visited := map[NodeRef]bool{start: true}
	queue := []frontierNode{{node: start, path: []PathStep{{Node: start}}}}

	for hop := 0; len(queue) > 0 && hop < maxDepth; hop++ {
		var next []frontierNode
		for _, fn := range queue {
			for _, e := range idx.undirectedNeighbors(fn.node) {
				if visited[e.Node] {
					continue
				}
				path := append(append([]PathStep{}, fn.path...), PathStep{Label: e.Label, Node: e.Node})
				if e.Node == end {
					return path, true
				}
				visited[e.Node] = true
				next = append(next, frontierNode{node: e.Node, path: path})
			}
		}
		queue = next
	}
	return nil, false
}

// PathExists reports whether any path of at most maxDepth hops connects
// start to end.
func (idx *Index) PathExists(start, end NodeRef, maxDepth int) bool {
	_, ok := idx.ShortestPath(start, end, maxDepth)
	return ok
}

// CommonNeighbors returns the set of nodes reachable as an outbound
// neighbor of both a and b, per §4.8.
func (idx *Index) CommonNeighbors(a, b NodeRef) []NodeRef {
	aNeighbors := make(map[NodeRef]bool)
	for _, e := range idx.Outbound(a.Entity, a.ID, nil) {
		aNeighbors[e.Node] = true
	}
	var common []NodeRef
	seen := make(map[NodeRef]bool)
	for _, e := range idx.Outbound(b.Entity, b.ID, nil) {
		if aNeighbors[e.Node] && !seen[e.Node] {
			seen[e.Node] = true
			common = append(common, e.Node)
		}
	}
	return common
}

// NeighborhoodAggregate walks outbound from node up to depth hops and
// aggregates the named property across every node reached, per §4.8.
// Nodes without a numeric value for the property are skipped, so count
// counts only the nodes that carry one.
func (idx *Index) NeighborhoodAggregate(node NodeRef, depth int, property string, aggregation Aggregation) (float64, error) {
	visited := map[NodeRef]bool{node: true}
	frontier := []NodeRef{node}

	var values []float64
	collect := func(n NodeRef) {
		if n == node {
			return
		}
		props, ok := idx.Properties(n.Entity, n.ID)
		if !ok {
			return
		}
		if v, ok := asFloat(props[property]); ok {
			values = append(values, v)
		}
	}

	for d := 0; d < depth; d++ {
		var next []NodeRef
		for _, n := range frontier {
			for _, e := range idx.Outbound(n.Entity, n.ID, nil) {
				if visited[e.Node] {
					continue
				}
				visited[e.Node] = true
				next = append(next, e.Node)
			}
		}
		frontier = next
	}
	for n := range visited {
		collect(n)
	}

	switch aggregation {
	case AggCount:
		return float64(len(values)), nil
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case AggAvg:
		if len(values) == 0 {
			return 0, nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case AggMin:
		if len(values) == 0 {
			return 0, apperr.New(apperr.KindQueryRuntime, "no values to aggregate for property %q", property)
		}
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case AggMax:
		if len(values) == 0 {
			return 0, apperr.New(apperr.KindQueryRuntime, "no values to aggregate for property %q", property)
		}
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, apperr.New(apperr.KindQueryRuntime, "unknown aggregation function %q", aggregation)
	}
}
