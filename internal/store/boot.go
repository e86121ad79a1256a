package store

import "rserv/internal/graphidx"

// ScanEntity loads every document currently stored for entity as
// graphidx.ScanDoc records, for the boot-time edge-index (re)build of
// §4.5. Documents that fail to parse are skipped rather than aborting the
// whole scan — a single corrupt file shouldn't prevent the rest of the
// graph from being indexed.
func (s *Store) ScanEntity(entity string) ([]graphidx.ScanDoc, error) {
	ids, err := s.layout.ListDocumentIDs(entity)
	if err != nil {
		return nil, err
	}

	docs := make([]graphidx.ScanDoc, 0, len(ids))
	for _, id := range ids {
		doc, err := readDocument(s.layout, entity, id)
		if err != nil {
			s.logger.Warnw("skipping unreadable document during graph scan", "entity", entity, "id", id, "error", err)
			continue
		}
		docs = append(docs, graphidx.ScanDoc{
			Entity:   entity,
			ID:       id,
			Document: doc,
			Refs:     s.registry.ReferencesOf(entity, doc),
		})
	}
	return docs, nil
}

// ListIDs returns every document id currently stored for entity, for the
// list/search HTTP endpoints.
func (s *Store) ListIDs(entity string) ([]int64, error) {
	return s.layout.ListDocumentIDs(entity)
}

// Entities lists the entities currently present on disk plus any declared
// in the schema registry, the seed set for the boot-time edge-index scan.
func (s *Store) Entities() ([]string, error) {
	onDisk, err := s.layout.ListEntities()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(onDisk))
	all := append([]string{}, onDisk...)
	for _, e := range onDisk {
		seen[e] = true
	}
	for _, e := range s.registry.Entities() {
		if !seen[e] {
			seen[e] = true
			all = append(all, e)
		}
	}
	return all, nil
}
