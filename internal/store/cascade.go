package store

import (
	"rserv/internal/apperr"
	"rserv/internal/fsutil"
	"rserv/internal/graphidx"
)

// cascadeDelete walks the edge index's inbound edges transitively from
// (entity, id) (without an edge index only (entity, id) itself is deleted),
// accumulating a worklist and a seen-set so a diamond-shaped reference
// graph (two different documents both pointing at a third, which points
// back at the original) is only deleted once — reproduced from the
// prototype's cascade_delete, per SPEC_FULL's supplemented-features note.
// Edges are removed from the index only after every document in the
// worklist has been deleted.
func (s *Store) cascadeDelete(entity string, id int64) error {
	root := graphidx.NodeRef{Entity: entity, ID: id}
	if !documentExists(s.layout, entity, id) {
		return apperr.NotFound("%s/%d not found", entity, id)
	}

	seen := map[graphidx.NodeRef]bool{root: true}
	worklist := []graphidx.NodeRef{root}
	order := []graphidx.NodeRef{}

	for i := 0; i < len(worklist); i++ {
		node := worklist[i]
		order = append(order, node)

		if s.index == nil {
			continue
		}
		for _, e := range s.index.Inbound(node.Entity, node.ID, nil) {
			if seen[e.Node] {
				continue
			}
			seen[e.Node] = true
			worklist = append(worklist, e.Node)
		}
	}

	// Delete leaves-first: referrers (appended later in the BFS) must be
	// gone before the node they point at, so walk order in reverse.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		err := fsutil.WithLock(s.layout.LockPath(node.Entity), func() error {
			if !documentExists(s.layout, node.Entity, node.ID) {
				return nil
			}
			return removeDocument(s.layout, node.Entity, node.ID)
		})
		if err != nil {
			return err
		}
	}

	// Edges are removed from the index last, per §4.4's ordering rule.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if s.index != nil {
			s.index.Remove(node.Entity, node.ID)
		}
		s.documentCache.Invalidate(node.Entity, node.ID)
	}

	s.invalidator.InvalidateAll()
	return nil
}
