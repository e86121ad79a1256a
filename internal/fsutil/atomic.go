package fsutil

import (
	"os"
	"path/filepath"

	"rserv/internal/apperr"
)

// WriteFileAtomic serialises data to a sibling temp file, fsyncs it, and
// renames it into place — the rename is what gives readers the atomicity
// guarantee from §4.1 ("readers tolerate stale content only across rename
// boundaries").
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperr.Storage(err, "failed to create temp file in %s", dir)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return apperr.Storage(err, "failed to write temp file %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return apperr.Storage(err, "failed to fsync temp file %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Storage(err, "failed to close temp file %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return apperr.Storage(err, "failed to chmod temp file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperr.Storage(err, "failed to rename temp file into place at %s", path)
	}
	return nil
}

// ReadFile reads path; readers never lock, per §4.1.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("file %s does not exist", path)
		}
		return nil, apperr.Storage(err, "failed to read file %s", path)
	}
	return data, nil
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
