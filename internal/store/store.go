// Package store implements the document store of §4.4: per-entity
// directories of JSON documents, CRUD operations linearised by the
// per-entity advisory lock, schema validation on every write, and edge
// index maintenance so the graph overlay never drifts from document
// content.
package store

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rserv/internal/apperr"
	"rserv/internal/cache"
	"rserv/internal/fsutil"
	"rserv/internal/graphidx"
	"rserv/internal/schema"
)

// PatchNullPolicy selects how an explicit JSON null in a PATCH body is
// handled once validation has passed, per §6's patch_null config key.
type PatchNullPolicy string

const (
	// PatchNullStore keeps the field with an explicit null value.
	PatchNullStore PatchNullPolicy = "store"
	// PatchNullDelete removes the field from the stored document.
	PatchNullDelete PatchNullPolicy = "delete"
)

// Invalidator is the cache-eviction hook invoked on every successful
// write, per §4.9's conservative "evict everything" policy. Injected so
// this package never imports the job/cache packages.
type Invalidator interface {
	InvalidateAll()
}

// noopInvalidator is used when no cache is wired.
type noopInvalidator struct{}

func (noopInvalidator) InvalidateAll() {}

// Store is the document store. It implements schema.Lookup directly so
// the validator can check FK existence and uniqueness without importing
// this package.
type Store struct {
	layout         fsutil.Layout
	registry       *schema.Registry
	validator      *schema.Validator
	allocator      Allocator
	index          *graphidx.Index
	invalidator    Invalidator
	documentCache  cache.DocumentCache
	cacheTTL       time.Duration
	patchNull      PatchNullPolicy
	cascadeEnabled bool
	logger         *zap.SugaredLogger
}

// Allocator is the capability Store needs from internal/idalloc, kept as
// an interface so tests can substitute a fake sequence.
type Allocator interface {
	Allocate(entity string) (int64, error)
}

// Config bundles the construction-time options for a Store.
type Config struct {
	Layout         fsutil.Layout
	Registry       *schema.Registry
	Allocator      Allocator
	Index          *graphidx.Index
	Invalidator    Invalidator
	DocumentCache  cache.DocumentCache
	CacheTTL       time.Duration
	PatchNull      PatchNullPolicy
	CascadeEnabled bool
	Logger         *zap.SugaredLogger
}

// New builds a Store from cfg.
func New(cfg Config) *Store {
	inv := cfg.Invalidator
	if inv == nil {
		inv = noopInvalidator{}
	}
	documentCache := cfg.DocumentCache
	if documentCache == nil {
		documentCache = cache.NoopDocumentCache{}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Store{
		layout:         cfg.Layout,
		registry:       cfg.Registry,
		validator:      schema.NewValidator(cfg.Registry),
		allocator:      cfg.Allocator,
		index:          cfg.Index,
		invalidator:    inv,
		documentCache:  documentCache,
		cacheTTL:       cacheTTL,
		patchNull:      cfg.PatchNull,
		cascadeEnabled: cfg.CascadeEnabled,
		logger:         cfg.Logger,
	}
}

// Exists implements schema.Lookup.
func (s *Store) Exists(entity string, id int64) bool {
	return documentExists(s.layout, entity, id)
}

// FieldEquals implements schema.Lookup via a linear scan of entity's
// documents, matching the prototype's unique-by-linear-scan behaviour
// (there is no secondary index for uniqueness).
func (s *Store) FieldEquals(entity, field string, value interface{}, excludeID int64) bool {
	ids, err := s.layout.ListDocumentIDs(entity)
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == excludeID {
			continue
		}
		doc, err := readDocument(s.layout, entity, id)
		if err != nil {
			continue
		}
		if looseEqual(doc[field], value) {
			return true
		}
	}
	return false
}

func looseEqual(a, b interface{}) bool {
	af, aok := asComparableFloat(a)
	bf, bok := asComparableFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asComparableFloat(v interface{}) (float64, bool) {
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

// Create allocates a fresh id for entity, validates body, writes the
// document, updates the edge index, and invalidates caches. Returns the
// allocated id and the normalised stored document.
func (s *Store) Create(entity string, body map[string]interface{}) (int64, map[string]interface{}, error) {
	if err := s.layout.EnsureEntityDir(entity); err != nil {
		return 0, nil, err
	}

	// Allocate takes the entity lock itself, so it runs before the write
	// below acquires that lock again.
	id, err := s.allocator.Allocate(entity)
	if err != nil {
		return 0, nil, err
	}

	var stored map[string]interface{}
	err = fsutil.WithLock(s.layout.LockPath(entity), func() error {
		doc := cloneDoc(body)
		doc["id"] = id
		normalized, verr := s.validator.Validate(entity, doc, schema.ModeCreate, id, s)
		if verr != nil {
			return verr
		}
		if err := writeDocument(s.layout, entity, id, normalized); err != nil {
			return err
		}
		stored = normalized
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	s.updateIndex(entity, id, stored)
	s.documentCache.Invalidate(entity, id)
	s.invalidator.InvalidateAll()
	return id, stored, nil
}

// Save writes body under the caller-supplied id, failing with Conflict if
// a document already exists there.
func (s *Store) Save(entity string, id int64, body map[string]interface{}) (map[string]interface{}, error) {
	if err := s.layout.EnsureEntityDir(entity); err != nil {
		return nil, err
	}

	var stored map[string]interface{}
	err := fsutil.WithLock(s.layout.LockPath(entity), func() error {
		if documentExists(s.layout, entity, id) {
			return apperr.Conflict("%s/%d already exists", entity, id)
		}
		doc := cloneDoc(body)
		doc["id"] = id
		normalized, verr := s.validator.Validate(entity, doc, schema.ModeCreate, id, s)
		if verr != nil {
			return verr
		}
		if err := writeDocument(s.layout, entity, id, normalized); err != nil {
			return err
		}
		stored = normalized
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateIndex(entity, id, stored)
	s.documentCache.Invalidate(entity, id)
	s.invalidator.InvalidateAll()
	return stored, nil
}

// Get returns entity/id's document, or NotFound. Reads through
// documentCache: a hit is unmarshalled straight from the cached bytes,
// a miss falls back to disk and populates the cache for next time.
func (s *Store) Get(entity string, id int64) (map[string]interface{}, error) {
	if cached, ok := s.documentCache.Get(entity, id); ok {
		var doc map[string]interface{}
		if err := json.Unmarshal(cached, &doc); err == nil {
			return doc, nil
		}
	}

	doc, err := readDocument(s.layout, entity, id)
	if err != nil {
		return nil, err
	}
	if encoded, merr := json.Marshal(doc); merr == nil {
		s.documentCache.Set(entity, id, encoded, s.cacheTTL)
	}
	return doc, nil
}

// Replace rewrites entity/id's document wholesale, recomputing edges.
func (s *Store) Replace(entity string, id int64, body map[string]interface{}) (map[string]interface{}, error) {
	var stored map[string]interface{}
	err := fsutil.WithLock(s.layout.LockPath(entity), func() error {
		if !documentExists(s.layout, entity, id) {
			return apperr.NotFound("%s/%d not found", entity, id)
		}
		doc := cloneDoc(body)
		doc["id"] = id
		normalized, verr := s.validator.Validate(entity, doc, schema.ModeReplace, id, s)
		if verr != nil {
			return verr
		}
		if err := writeDocument(s.layout, entity, id, normalized); err != nil {
			return err
		}
		stored = normalized
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateIndex(entity, id, stored)
	s.documentCache.Invalidate(entity, id)
	s.invalidator.InvalidateAll()
	return stored, nil
}

// Patch merges partial into entity/id's existing document, validates the
// merged result before applying the patch_null policy (so a patch cannot
// sneak a required field to null without tripping validation), writes the
// result, and recomputes edges.
func (s *Store) Patch(entity string, id int64, partial map[string]interface{}) (map[string]interface{}, error) {
	var stored map[string]interface{}
	err := fsutil.WithLock(s.layout.LockPath(entity), func() error {
		existing, rerr := readDocument(s.layout, entity, id)
		if rerr != nil {
			return rerr
		}

		merged := cloneDoc(existing)
		for k, v := range partial {
			merged[k] = v
		}
		merged["id"] = id

		normalized, verr := s.validator.Validate(entity, merged, schema.ModePatch, id, s)
		if verr != nil {
			return verr
		}

		if s.patchNull == PatchNullDelete {
			for k, v := range partial {
				if v == nil {
					delete(normalized, k)
				}
			}
		}

		if err := writeDocument(s.layout, entity, id, normalized); err != nil {
			return err
		}
		stored = normalized
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateIndex(entity, id, stored)
	s.documentCache.Invalidate(entity, id)
	s.invalidator.InvalidateAll()
	return stored, nil
}

// Delete removes entity/id. If cascade is requested and enabled globally,
// every document transitively referencing the target is deleted first
// (see cascade.go); otherwise a referenced document refuses deletion with
// IntegrityError.
func (s *Store) Delete(entity string, id int64, cascade bool) error {
	if cascade && s.cascadeEnabled {
		return s.cascadeDelete(entity, id)
	}

	if s.hasReferrers(entity, id) {
		return apperr.New(apperr.KindIntegrity, "%s/%d is referenced by other documents", entity, id).WithStatus(409)
	}
	return s.deleteOne(entity, id)
}

// deleteOne removes a single document file and its edge-index entry.
func (s *Store) deleteOne(entity string, id int64) error {
	err := fsutil.WithLock(s.layout.LockPath(entity), func() error {
		if !documentExists(s.layout, entity, id) {
			return apperr.NotFound("%s/%d not found", entity, id)
		}
		return removeDocument(s.layout, entity, id)
	})
	if err != nil {
		return err
	}
	if s.index != nil {
		s.index.Remove(entity, id)
	}
	s.documentCache.Invalidate(entity, id)
	s.invalidator.InvalidateAll()
	return nil
}

// hasReferrers reports whether any other document currently references
// entity/id, using the edge index's inbound adjacency rather than a full
// document scan.
func (s *Store) hasReferrers(entity string, id int64) bool {
	if s.index == nil {
		return false
	}
	return len(s.index.Inbound(entity, id, nil)) > 0
}

// updateIndex pushes document's current REF fields into the edge index.
func (s *Store) updateIndex(entity string, id int64, document map[string]interface{}) {
	if s.index == nil {
		return
	}
	refs := s.registry.ReferencesOf(entity, document)
	s.index.Upsert(entity, id, document, refs)
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
