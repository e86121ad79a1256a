package fsutil

import (
	"os"

	"golang.org/x/sys/unix"

	"rserv/internal/apperr"
)

// Lock is an exclusive advisory file lock on a dedicated lock file, guarding
// the read-modify-write of a document or allocator file per §4.1. The
// teacher uses golang.org/x/sys/unix for mmap (unix.Mmap/unix.Msync); this
// rework reaches for the same package's unix.Flock for the locking
// primitive the spec actually calls for.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock opens (creating if necessary) the lock file at path and takes
// an exclusive flock on it. The caller MUST call Release on every exit path,
// including failure, per §4.1.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, apperr.Storage(err, "failed to open lock file %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, apperr.Storage(err, "failed to acquire lock on %s", path)
	}
	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. Safe to call once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return apperr.Storage(err, "failed to release lock on %s", l.path)
	}
	if closeErr != nil {
		return apperr.Storage(closeErr, "failed to close lock file %s", l.path)
	}
	return nil
}

// WithLock acquires the lock at path, runs fn, and releases the lock on
// every return path (including panics propagating through fn).
func WithLock(path string, fn func() error) error {
	lock, err := AcquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
