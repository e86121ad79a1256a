// Package cache declares the collaborator interfaces for the two
// outer-edge subsystems this prototype deliberately stops at the
// boundary of: a read-through document cache and a full-text search
// indexer. Concrete backends are out of scope; callers wire a no-op or
// a future adapter behind these interfaces without internal/store or
// internal/httpapi needing to know which one is in play.
package cache

import "time"

// DocumentCache fronts document reads with a cache selectable via the
// cache_type config key (ttlcache or redis). Implementations decide
// their own eviction and network behaviour; internal/store only needs
// Get/Set/Invalidate.
type DocumentCache interface {
	Get(entity string, id int64) ([]byte, bool)
	Set(entity string, id int64, document []byte, ttl time.Duration)
	Invalidate(entity string, id int64)
	InvalidateEntity(entity string)
}

// SearchIndexer maintains a full-text index over document fields,
// toggled by the fulltext_enabled config key. internal/store calls
// Index/Delete on writes; internal/httpapi's search endpoint calls
// Query.
type SearchIndexer interface {
	Index(entity string, id int64, document map[string]interface{}) error
	Delete(entity string, id int64) error
	Query(entity, field, query string, page, perPage int) ([]int64, error)
}

// NoopDocumentCache satisfies DocumentCache without caching anything.
// It is the default when cache_type names a backend this build does
// not wire in, so callers always have a collaborator to hold.
type NoopDocumentCache struct{}

func (NoopDocumentCache) Get(string, int64) ([]byte, bool)             { return nil, false }
func (NoopDocumentCache) Set(string, int64, []byte, time.Duration)     {}
func (NoopDocumentCache) Invalidate(string, int64)                     {}
func (NoopDocumentCache) InvalidateEntity(string)                      {}

// NoopSearchIndexer satisfies SearchIndexer without indexing anything.
// It is the default when fulltext_enabled is false.
type NoopSearchIndexer struct{}

func (NoopSearchIndexer) Index(string, int64, map[string]interface{}) error { return nil }
func (NoopSearchIndexer) Delete(string, int64) error                        { return nil }
func (NoopSearchIndexer) Query(string, string, string, int, int) ([]int64, error) {
	return nil, nil
}
