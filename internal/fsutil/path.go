// Package fsutil implements the on-disk layout of §4.1: entity/document
// directories, atomic document writes, and the advisory lock that
// serialises read-modify-write of a single document or allocator file.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"rserv/internal/apperr"
)

var entityNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidEntityName reports whether name satisfies the entity-name invariant
// from §3: `[A-Za-z_][A-Za-z0-9_]*`.
func ValidEntityName(name string) bool {
	return entityNameRe.MatchString(name)
}

// Layout resolves the on-disk paths for one schema's data root.
type Layout struct {
	DataRoot   string // <data_root>
	SchemaName string // <schema>
}

// NewLayout builds a Layout rooted at dataRoot/schemaName.
func NewLayout(dataRoot, schemaName string) Layout {
	return Layout{DataRoot: dataRoot, SchemaName: schemaName}
}

// EntityDir returns <data_root>/<schema>/<entity>/.
func (l Layout) EntityDir(entity string) string {
	return filepath.Join(l.DataRoot, l.SchemaName, entity)
}

// DocumentPath returns <data_root>/<schema>/<entity>/<id>.json.
func (l Layout) DocumentPath(entity string, id int64) string {
	return filepath.Join(l.EntityDir(entity), fmt.Sprintf("%d.json", id))
}

// NextIDPath returns the allocator state file for entity.
func (l Layout) NextIDPath(entity string) string {
	return filepath.Join(l.EntityDir(entity), "_next_id.txt")
}

// LockPath returns the advisory lock file for entity.
func (l Layout) LockPath(entity string) string {
	return filepath.Join(l.EntityDir(entity), ".lock")
}

// GraphIndexPath returns <data_root>/<schema>/graph.index.
func (l Layout) GraphIndexPath() string {
	return filepath.Join(l.DataRoot, l.SchemaName, "graph.index")
}

// EnsureEntityDir creates the entity directory on first write, per §3
// "created implicitly on first document write".
func (l Layout) EnsureEntityDir(entity string) error {
	if !ValidEntityName(entity) {
		return apperr.New(apperr.KindValidation, "invalid entity name: %s", entity)
	}
	if err := os.MkdirAll(l.EntityDir(entity), 0o755); err != nil {
		return apperr.Storage(err, "failed to create entity directory for %s", entity)
	}
	return nil
}

// ListEntities enumerates entity directories currently present under the
// schema root — used by the boot-time edge-index scan.
func (l Layout) ListEntities() ([]string, error) {
	root := filepath.Join(l.DataRoot, l.SchemaName)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Storage(err, "failed to list schema root %s", root)
	}
	var entities []string
	for _, e := range entries {
		if e.IsDir() && ValidEntityName(e.Name()) {
			entities = append(entities, e.Name())
		}
	}
	return entities, nil
}

// ListDocumentIDs enumerates the document ids currently stored for entity.
func (l Layout) ListDocumentIDs(entity string) ([]int64, error) {
	entries, err := os.ReadDir(l.EntityDir(entity))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Storage(err, "failed to list entity directory for %s", entity)
	}
	var ids []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var id int64
		if _, err := fmt.Sscanf(name, "%d.json", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
