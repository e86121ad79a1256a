package graphidx

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rserv/internal/schema"
)

// ScanDoc is one document surfaced by the boot-time store scan used to
// (re)build the index from scratch.
type ScanDoc struct {
	Entity   string
	ID       int64
	Document map[string]interface{}
	Refs     []schema.Reference
}

// Direction selects which adjacency a degree/traversal query inspects.
type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
	DirAll Direction = "all"
)

// Index is the in-memory bidirectional adjacency structure of §3/§4.5,
// optionally mirrored to a persisted graph.index file (see persist.go).
// It is process-wide and protected by a single RWMutex per §5's
// many-readers/one-writer discipline.
type Index struct {
	mu     sync.RWMutex
	out    map[NodeRef][]Edge
	in     map[NodeRef][]Edge
	props  map[NodeRef]map[string]interface{}
	byType map[string]map[NodeRef]struct{}

	persisted bool
	path      string
	logger    *zap.SugaredLogger
}

// New builds an empty Index. If persisted is true, path names the
// graph.index file Flush/Load operate on.
func New(persisted bool, path string, logger *zap.SugaredLogger) *Index {
	return &Index{
		out:       make(map[NodeRef][]Edge),
		in:        make(map[NodeRef][]Edge),
		props:     make(map[NodeRef]map[string]interface{}),
		byType:    make(map[string]map[NodeRef]struct{}),
		persisted: persisted,
		path:      path,
		logger:    logger,
	}
}

// Persisted reports whether this index mirrors itself to disk.
func (idx *Index) Persisted() bool { return idx.persisted }

// LoadOrRebuild brings the index up to date at boot. In persisted mode it
// tries Load(path) first and falls back to a full scan on a missing or
// checksum-mismatched file, per §4.5. In memory-only mode it always
// rebuilds from scan. scan enumerates every document across every entity;
// per-entity batches are fetched concurrently via errgroup, mirroring the
// fan-out-then-join pattern the pack's OFFIS-RIT-kiwi graph package uses
// for bulk document processing.
func (idx *Index) LoadOrRebuild(entities []string, scanEntity func(entity string) ([]ScanDoc, error)) error {
	if idx.persisted {
		if err := idx.Load(); err == nil {
			return nil
		}
		idx.logger.Infow("graph index missing or corrupt, rebuilding from document scan")
	}
	return idx.rebuild(entities, scanEntity)
}

func (idx *Index) rebuild(entities []string, scanEntity func(entity string) ([]ScanDoc, error)) error {
	results := make([][]ScanDoc, len(entities))

	g := new(errgroup.Group)
	for i, entity := range entities {
		i, entity := i, entity
		g.Go(func() error {
			docs, err := scanEntity(entity)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.out = make(map[NodeRef][]Edge)
	idx.in = make(map[NodeRef][]Edge)
	idx.props = make(map[NodeRef]map[string]interface{})
	idx.byType = make(map[string]map[NodeRef]struct{})
	idx.mu.Unlock()

	for _, docs := range results {
		for _, d := range docs {
			idx.Upsert(d.Entity, d.ID, d.Document, d.Refs)
		}
	}
	if idx.persisted {
		return idx.Flush()
	}
	return nil
}

// Upsert (re)computes the outbound edges of (entity, id) from refs,
// updating the affected targets' inbound sets, and snapshots document's
// non-REF fields as the node's properties. Safe to call for both create
// and update — the previous outbound set is diffed away first.
func (idx *Index) Upsert(entity string, id int64, document map[string]interface{}, refs []schema.Reference) {
	node := NodeRef{Entity: entity, ID: id}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeOutboundLocked(node)

	newOut := make([]Edge, 0, len(refs))
	for _, ref := range refs {
		target := NodeRef{Entity: ref.TargetEntity, ID: ref.TargetID}
		newOut = append(newOut, Edge{Label: Label(ref.Field), Node: target})
		idx.in[target] = append(idx.in[target], Edge{Label: Label(ref.Field), Node: node})
		sortEdges(idx.in[target])
	}
	sortEdges(newOut)
	if len(newOut) > 0 {
		idx.out[node] = newOut
	} else {
		delete(idx.out, node)
	}

	refFields := make(map[string]bool, len(refs))
	for _, ref := range refs {
		refFields[ref.Field] = true
	}
	props := make(map[string]interface{}, len(document))
	for k, v := range document {
		if !refFields[k] {
			props[k] = v
		}
	}
	idx.props[node] = props

	typ := NodeType(entity)
	set, ok := idx.byType[typ]
	if !ok {
		set = make(map[NodeRef]struct{})
		idx.byType[typ] = set
	}
	set[node] = struct{}{}
}

// removeOutboundLocked clears node's current outbound edges and their
// mirrored inbound entries on the targets. Caller holds idx.mu.
func (idx *Index) removeOutboundLocked(node NodeRef) {
	for _, e := range idx.out[node] {
		idx.in[e.Node] = removeEdge(idx.in[e.Node], e.Label, node)
	}
	delete(idx.out, node)
}

// Remove deletes node entirely: its outbound edges, its inbound edges, its
// properties, and its type-index membership. Callers (the document store)
// are expected to have already verified no referrer would be left
// dangling, or to be mid-cascade.
func (idx *Index) Remove(entity string, id int64) {
	node := NodeRef{Entity: entity, ID: id}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeOutboundLocked(node)
	for _, e := range idx.in[node] {
		idx.out[e.Node] = removeEdge(idx.out[e.Node], e.Label, node)
	}
	delete(idx.in, node)
	delete(idx.props, node)
	if set, ok := idx.byType[NodeType(entity)]; ok {
		delete(set, node)
	}
}

func removeEdge(edges []Edge, label string, node NodeRef) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.Label == label && e.Node == node {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Outbound returns node's outbound edges, optionally filtered to the given
// labels (nil/empty means all labels).
func (idx *Index) Outbound(entity string, id int64, labels []string) []Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return filterLabels(idx.out[NodeRef{Entity: entity, ID: id}], labels)
}

// Inbound returns node's inbound edges, optionally filtered to the given
// labels.
func (idx *Index) Inbound(entity string, id int64, labels []string) []Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return filterLabels(idx.in[NodeRef{Entity: entity, ID: id}], labels)
}

func filterLabels(edges []Edge, labels []string) []Edge {
	if len(labels) == 0 {
		out := make([]Edge, len(edges))
		copy(out, edges)
		return out
	}
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	var out []Edge
	for _, e := range edges {
		if allowed[e.Label] {
			out = append(out, e)
		}
	}
	return out
}

// Degree counts node's edges in the given direction, per §4.8.
func (idx *Index) Degree(entity string, id int64, dir Direction) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	node := NodeRef{Entity: entity, ID: id}
	switch dir {
	case DirIn:
		return len(idx.in[node])
	case DirOut:
		return len(idx.out[node])
	default:
		return len(idx.in[node]) + len(idx.out[node])
	}
}

// Properties returns node's property snapshot (document fields excluding
// REF fields, per §3).
func (idx *Index) Properties(entity string, id int64) (map[string]interface{}, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.props[NodeRef{Entity: entity, ID: id}]
	return p, ok
}

// NodesByType returns every node whose entity maps to nodeType, per the
// nodes_by_type type index of §4.5.
func (idx *Index) NodesByType(nodeType string) []NodeRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []NodeRef
	for typ, set := range idx.byType {
		if !MatchesEntity(typ, nodeType) {
			continue
		}
		for node := range set {
			out = append(out, node)
		}
	}
	return out
}

// AllNodes returns every node the index currently knows about (seen as a
// source, target, or property-bearing document) — the fallback seed set
// for patterns whose first element carries no type annotation.
func (idx *Index) AllNodes() []NodeRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[NodeRef]struct{})
	for n := range idx.props {
		seen[n] = struct{}{}
	}
	for n := range idx.out {
		seen[n] = struct{}{}
	}
	for n := range idx.in {
		seen[n] = struct{}{}
	}
	out := make([]NodeRef, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// Lookup scans NodesByType(nodeType)'s properties for field == value, the
// property_by_type_field_value index of §4.5 serving planner seed
// selection in indexed mode.
func (idx *Index) Lookup(nodeType, field string, value interface{}) []NodeRef {
	candidates := idx.NodesByType(nodeType)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []NodeRef
	for _, node := range candidates {
		if p, ok := idx.props[node]; ok {
			if equalLoose(p[field], value) {
				out = append(out, node)
			}
		}
	}
	return out
}

// Statistics computes node count, edge count, and average out-degree, per
// §4.8's statistics() operation.
func (idx *Index) Statistics() (nodeCount, edgeCount int, avgOutDegree float64) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[NodeRef]struct{})
	for n := range idx.out {
		seen[n] = struct{}{}
	}
	for n := range idx.in {
		seen[n] = struct{}{}
	}
	for n := range idx.props {
		seen[n] = struct{}{}
	}
	nodeCount = len(seen)

	for _, edges := range idx.out {
		edgeCount += len(edges)
	}
	if nodeCount > 0 {
		avgOutDegree = float64(edgeCount) / float64(nodeCount)
	}
	return
}

func equalLoose(a, b interface{}) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
