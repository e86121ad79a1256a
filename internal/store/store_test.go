package store

import (
	"fmt"
	"testing"
	"time"

	"rserv/internal/apperr"
	"rserv/internal/fsutil"
	"rserv/internal/graphidx"
	"rserv/internal/idalloc"
	"rserv/internal/logging"
	"rserv/internal/schema"
)

func newTestStore(t *testing.T, patchNull PatchNullPolicy, cascade bool) *Store {
	t.Helper()
	layout := fsutil.NewLayout(t.TempDir(), "testschema")
	registry := schema.NewRegistry(t.TempDir(), "unused")
	idx := graphidx.New(false, "", logging.Noop())
	return New(Config{
		Layout:         layout,
		Registry:       registry,
		Allocator:      idalloc.New(layout),
		Index:          idx,
		PatchNull:      patchNull,
		CascadeEnabled: cascade,
		Logger:         logging.Noop(),
	})
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)

	id, doc, err := s.Create("users", map[string]interface{}{"name": "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id to be 1, got %d", id)
	}
	if doc["name"] != "Alice" {
		t.Fatalf("unexpected stored document: %+v", doc)
	}

	got, err := s.Get("users", id)
	if err != nil {
		t.Fatalf("unexpected error on get: %v", err)
	}
	if got["name"] != "Alice" {
		t.Fatalf("unexpected fetched document: %+v", got)
	}
}

func TestSaveConflictsOnExistingID(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	if _, err := s.Save("users", 5, map[string]interface{}{"name": "Alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := s.Save("users", 5, map[string]interface{}{"name": "Bob"})
	if !apperr.As(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	_, err := s.Get("users", 99)
	if !apperr.As(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReplaceRewritesDocument(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	id, _, _ := s.Create("users", map[string]interface{}{"name": "Alice"})

	updated, err := s.Replace("users", id, map[string]interface{}{"name": "Alicia"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated["name"] != "Alicia" {
		t.Fatalf("unexpected replaced document: %+v", updated)
	}
}

func TestPatchStorePolicyKeepsExplicitNull(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	id, _, _ := s.Create("users", map[string]interface{}{"name": "Alice", "age": float64(30)})

	patched, err := s.Patch("users", id, map[string]interface{}{"age": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val, present := patched["age"]
	if !present || val != nil {
		t.Fatalf("expected age to be stored as explicit null, got %+v present=%v", val, present)
	}
}

func TestPatchDeletePolicyRemovesField(t *testing.T) {
	s := newTestStore(t, PatchNullDelete, false)
	id, _, _ := s.Create("users", map[string]interface{}{"name": "Alice", "age": float64(30)})

	patched, err := s.Patch("users", id, map[string]interface{}{"age": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, present := patched["age"]; present {
		t.Fatalf("expected age to be removed, got %+v", patched)
	}
}

func TestDeleteNonCascadeFailsWhenReferenced(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	uid, _, _ := s.Create("users", map[string]interface{}{"name": "Alice"})
	s.index.Upsert("posts", 1, map[string]interface{}{"title": "hi"}, []schema.Reference{
		{Field: "author_id", TargetEntity: "users", TargetID: uid},
	})

	err := s.Delete("users", uid, false)
	if !apperr.As(err, apperr.KindIntegrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
}

func TestDeleteCascadeRemovesReferrers(t *testing.T) {
	s := newTestStore(t, PatchNullStore, true)
	uid, _, _ := s.Create("users", map[string]interface{}{"name": "Alice"})
	pid, postDoc, _ := s.Create("posts", map[string]interface{}{"title": "hi", "author_id": map[string]interface{}{"id": uid}})
	s.index.Upsert("posts", pid, postDoc, []schema.Reference{{Field: "author_id", TargetEntity: "users", TargetID: uid}})

	if err := s.Delete("users", uid, true); err != nil {
		t.Fatalf("unexpected cascade delete error: %v", err)
	}

	if _, err := s.Get("users", uid); !apperr.As(err, apperr.KindNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	if _, err := s.Get("posts", pid); !apperr.As(err, apperr.KindNotFound) {
		t.Fatalf("expected post gone via cascade, got %v", err)
	}
}

// fakeDocumentCache is an in-memory cache.DocumentCache that records
// whether Get/Set/Invalidate were called, for asserting Store reads
// through it.
type fakeDocumentCache struct {
	entries     map[string][]byte
	getCalls    int
	setCalls    int
	invalidated []string
}

func newFakeDocumentCache() *fakeDocumentCache {
	return &fakeDocumentCache{entries: map[string][]byte{}}
}

func fakeCacheKey(entity string, id int64) string {
	return fmt.Sprintf("%s/%d", entity, id)
}

func (f *fakeDocumentCache) Get(entity string, id int64) ([]byte, bool) {
	f.getCalls++
	v, ok := f.entries[fakeCacheKey(entity, id)]
	return v, ok
}

func (f *fakeDocumentCache) Set(entity string, id int64, document []byte, ttl time.Duration) {
	f.setCalls++
	f.entries[fakeCacheKey(entity, id)] = document
}

func (f *fakeDocumentCache) Invalidate(entity string, id int64) {
	f.invalidated = append(f.invalidated, fakeCacheKey(entity, id))
	delete(f.entries, fakeCacheKey(entity, id))
}

func (f *fakeDocumentCache) InvalidateEntity(entity string) {}

func TestGetReadsThroughDocumentCache(t *testing.T) {
	layout := fsutil.NewLayout(t.TempDir(), "testschema")
	registry := schema.NewRegistry(t.TempDir(), "unused")
	idx := graphidx.New(false, "", logging.Noop())
	fake := newFakeDocumentCache()
	s := New(Config{
		Layout:        layout,
		Registry:      registry,
		Allocator:     idalloc.New(layout),
		Index:         idx,
		DocumentCache: fake,
		Logger:        logging.Noop(),
	})

	id, _, err := s.Create("users", map[string]interface{}{"name": "Alice"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if _, err := s.Get("users", id); err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if fake.setCalls == 0 {
		t.Fatal("expected Get to populate the document cache on a miss")
	}

	if _, err := s.Get("users", id); err != nil {
		t.Fatalf("unexpected second get error: %v", err)
	}
	setCallsAfterHit := fake.setCalls
	if setCallsAfterHit != 1 {
		t.Fatalf("expected the second Get to be served from cache without a re-Set, got %d Set calls", setCallsAfterHit)
	}

	if _, err := s.Replace("users", id, map[string]interface{}{"name": "Alicia"}); err != nil {
		t.Fatalf("unexpected replace error: %v", err)
	}
	if len(fake.invalidated) == 0 {
		t.Fatal("expected Replace to invalidate the cached document")
	}

	doc, err := s.Get("users", id)
	if err != nil {
		t.Fatalf("unexpected get-after-replace error: %v", err)
	}
	if doc["name"] != "Alicia" {
		t.Fatalf("expected the post-invalidation read to reflect the replace, got %+v", doc)
	}
}

func TestFieldEqualsUniqueScan(t *testing.T) {
	s := newTestStore(t, PatchNullStore, false)
	s.Create("users", map[string]interface{}{"name": "Alice"})
	id2, _, _ := s.Create("users", map[string]interface{}{"name": "Bob"})

	if !s.FieldEquals("users", "name", "Alice", id2) {
		t.Fatal("expected FieldEquals to find Alice excluding id2")
	}
	if s.FieldEquals("users", "name", "Alice", 1) {
		t.Fatal("expected FieldEquals to exclude the matching document itself")
	}
}
