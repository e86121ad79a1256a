// Package graphidx is the reference-resolver and edge-index overlay of
// §4.5: it derives directed, labelled edges from REF fields and maintains
// the bidirectional adjacency the Sulpher query engine and the graph
// algorithms traverse. It knows nothing about the document store's on-disk
// format — callers feed it (entity, id, document, references) tuples and
// it never reaches back into the store itself.
package graphidx

import (
	"sort"
	"strings"
)

// NodeRef identifies a node: an entity name plus document id.
type NodeRef struct {
	Entity string
	ID     int64
}

// Edge is one adjacency entry: a label plus the node on the other end.
type Edge struct {
	Label string
	Node  NodeRef
}

// Label upper-cases a reference field name into its edge label, per §3/§4.5
// ("a field foo_bar becomes edge label FOO_BAR").
func Label(field string) string {
	return strings.ToUpper(field)
}

// NodeType maps an entity name to its title-cased singular node type, per
// §4.5 ("entity users <-> node type User"). The mapping is a simple
// strip-trailing-s singularisation; it is not meant to be linguistically
// perfect, only consistent with MatchesEntity below.
func NodeType(entity string) string {
	singular := strings.TrimSuffix(entity, "s")
	if singular == "" {
		singular = entity
	}
	return strings.ToUpper(singular[:1]) + strings.ToLower(singular[1:])
}

// MatchesEntity reports whether typeName (from a Sulpher pattern, e.g.
// "User", "Users", "user") refers to entity, matching case-insensitively
// and accepting either singular or plural form.
func MatchesEntity(entity, typeName string) bool {
	if typeName == "" {
		return true
	}
	e := strings.ToLower(strings.TrimSuffix(entity, "s"))
	t := strings.ToLower(strings.TrimSuffix(typeName, "s"))
	return e == t
}

// sortEdges orders edges by (label ascending, node id ascending), per
// §4.7's determinism rule for adjacency iteration.
func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Label != edges[j].Label {
			return edges[i].Label < edges[j].Label
		}
		return edges[i].Node.ID < edges[j].Node.ID
	})
}
