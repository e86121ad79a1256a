// Package idalloc implements the per-entity monotonic ID allocator from
// §4.2: allocate(entity) reads the current value under an exclusive lock
// (default 1 if the state file is absent), writes value+1, and returns
// value. A crash between allocation and document creation leaves a gap,
// which the spec explicitly accepts.
package idalloc

import (
	"fmt"
	"strconv"
	"strings"

	"rserv/internal/apperr"
	"rserv/internal/fsutil"
)

// Allocator allocates monotonic document ids, one independent sequence
// per entity, backed by the _next_id.txt state file under each entity's
// directory.
type Allocator struct {
	layout fsutil.Layout
}

// New builds an Allocator rooted at layout.
func New(layout fsutil.Layout) *Allocator {
	return &Allocator{layout: layout}
}

// Allocate returns the next id for entity and durably advances the
// allocator state before returning. Never returns a value that has not
// been committed to disk.
func (a *Allocator) Allocate(entity string) (int64, error) {
	if err := a.layout.EnsureEntityDir(entity); err != nil {
		return 0, err
	}

	path := a.layout.NextIDPath(entity)
	lockPath := a.layout.LockPath(entity)

	var next int64
	err := fsutil.WithLock(lockPath, func() error {
		current, err := readCurrent(path)
		if err != nil {
			return err
		}
		next = current
		return fsutil.WriteFileAtomic(path, []byte(strconv.FormatInt(current+1, 10)), 0o644)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Peek returns the next id that would be allocated, without advancing the
// sequence. Used by tests and diagnostics; not part of the write path.
func (a *Allocator) Peek(entity string) (int64, error) {
	return readCurrent(a.layout.NextIDPath(entity))
}

func readCurrent(path string) (int64, error) {
	if !fsutil.Exists(path) {
		return 1, nil
	}
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 1, nil
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, apperr.Storage(err, "corrupt allocator state at %s", path)
	}
	return value, nil
}

// String is a debug helper.
func (a *Allocator) String() string {
	return fmt.Sprintf("Allocator{root=%s/%s}", a.layout.DataRoot, a.layout.SchemaName)
}
