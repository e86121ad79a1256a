package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rserv/internal/apperr"
)

// Registry loads and serves per-entity schemas from
// schema/<schema_name>/<entity>.json, following the teacher's store/factory
// split: Registry is the read-mostly, concurrency-safe lookup surface;
// loading happens once at start-up via Load.
type Registry struct {
	mu       sync.RWMutex
	root     string // schema/<schema_name>
	entities map[string]Schema
}

// NewRegistry builds an empty Registry rooted at schemaDir/schemaName.
func NewRegistry(schemaDir, schemaName string) *Registry {
	return &Registry{
		root:     filepath.Join(schemaDir, schemaName),
		entities: make(map[string]Schema),
	}
}

// Load reads every <entity>.json file present under the registry root. A
// missing root directory is not an error — it means no schemas are
// declared and the store runs unvalidated.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Storage(err, "failed to read schema directory %s", r.root)
	}

	loaded := make(map[string]Schema, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		entity := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return apperr.Storage(err, "failed to read schema file %s", entry.Name())
		}
		var s Schema
		if err := json.Unmarshal(data, &s); err != nil {
			return apperr.Storage(err, "failed to parse schema file %s", entry.Name())
		}
		loaded[entity] = s
	}

	r.mu.Lock()
	r.entities = loaded
	r.mu.Unlock()
	return nil
}

// Get returns the schema for entity, if one has been declared.
func (r *Registry) Get(entity string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entities[entity]
	return s, ok
}

// Entities lists every entity with a declared schema.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}

// Reference is one (field, target entity, target id) triple derived from a
// document's REF fields, per §4.3's references_of.
type Reference struct {
	Field        string
	TargetEntity string
	TargetID     int64
}

// ReferencesOf yields the REF-field references present in document,
// resolved against entity's schema. Unknown entities yield no references
// (documents for an unschemed entity carry no referential edges).
func (r *Registry) ReferencesOf(entity string, document map[string]interface{}) []Reference {
	s, ok := r.Get(entity)
	if !ok {
		return nil
	}
	var refs []Reference
	for name, field := range s {
		if field.Type != TypeRef {
			continue
		}
		targetEntity, _, ok := field.RefTarget()
		if !ok {
			continue
		}
		value, present := document[name]
		if !present || value == nil {
			continue
		}
		for _, id := range extractRefIDs(value) {
			refs = append(refs, Reference{Field: name, TargetEntity: targetEntity, TargetID: id})
		}
	}
	return refs
}

// extractRefIDs normalises a REF value — {"id": n}, a list of such, or the
// {"type":"REF","entity":...,"id":n} long form per §9's open question — into
// the list of target ids it carries.
func extractRefIDs(value interface{}) []int64 {
	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := numericID(v["id"]); ok {
			return []int64{id}
		}
		return nil
	case []interface{}:
		var ids []int64
		for _, item := range v {
			ids = append(ids, extractRefIDs(item)...)
		}
		return ids
	default:
		return nil
	}
}

func numericID(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// NormalizeRef rewrites a raw REF value (either short form or the
// {"type":"REF",...} long form) to the canonical {"id": n} stored form.
func NormalizeRef(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if id, ok := numericID(v["id"]); ok {
			return map[string]interface{}{"id": id}
		}
		return v
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = NormalizeRef(item)
		}
		return out
	default:
		return v
	}
}

// Referrer names one (entity, field) pair whose REF field points at a
// given target entity — used by cascade delete to find what references a
// document about to be removed.
type Referrer struct {
	SourceEntity string
	SourceField  string
}

// ReferrersOf returns the static list of (entity, field) pairs whose schema
// declares a REF field targeting targetEntity, per §4.3's referrers_of.
func (r *Registry) ReferrersOf(targetEntity string) []Referrer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Referrer
	for entity, s := range r.entities {
		for field, desc := range s {
			if desc.Type != TypeRef {
				continue
			}
			target, _, ok := desc.RefTarget()
			if ok && target == targetEntity {
				out = append(out, Referrer{SourceEntity: entity, SourceField: field})
			}
		}
	}
	return out
}
