package store

import (
	"encoding/json"
	"os"

	"rserv/internal/apperr"
	"rserv/internal/fsutil"
)

// readDocument loads and decodes entity/id's document file. Callers are
// responsible for holding the entity lock if a read is part of a
// read-modify-write sequence.
func readDocument(layout fsutil.Layout, entity string, id int64) (map[string]interface{}, error) {
	data, err := fsutil.ReadFile(layout.DocumentPath(entity, id))
	if err != nil {
		if apperr.As(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("%s/%d not found", entity, id)
		}
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Storage(err, "corrupt document at %s/%d", entity, id)
	}
	return doc, nil
}

// writeDocument atomically serialises document to entity/id's document
// file, per §4.1 (temp file, fsync, rename).
func writeDocument(layout fsutil.Layout, entity string, id int64, document map[string]interface{}) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return apperr.Storage(err, "failed to encode document %s/%d", entity, id)
	}
	return fsutil.WriteFileAtomic(layout.DocumentPath(entity, id), data, 0o644)
}

// documentExists reports whether entity/id currently has a document file.
func documentExists(layout fsutil.Layout, entity string, id int64) bool {
	return fsutil.Exists(layout.DocumentPath(entity, id))
}

// removeDocument deletes entity/id's document file.
func removeDocument(layout fsutil.Layout, entity string, id int64) error {
	path := layout.DocumentPath(entity, id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("%s/%d not found", entity, id)
		}
		return apperr.Storage(err, "failed to remove document %s/%d", entity, id)
	}
	return nil
}
