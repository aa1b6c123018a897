// Package lockfile provides the advisory-locking and atomic-JSON-write
// primitives every shared and per-worktree resource (state documents, the
// journal, the topology cache) is built on.
//
// Grounded on original_source/filelock.py's locked_open/atomic_write_json,
// reimplemented with github.com/gofrs/flock (sourced from the
// monkey-w1n5t0n-gastown example, which depends on it for the same kind of
// single-host, multi-process file coordination).
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// sibling returns the ".lock" path used solely for advisory locking.
func sibling(path string) string {
	return path + ".lock"
}

// WithExclusive takes an exclusive lock on path's sibling lockfile for the
// duration of fn.
func WithExclusive(path string, fn func() error) error {
	lk := flock.New(sibling(path))
	if err := lk.Lock(); err != nil {
		return fmt.Errorf("acquiring exclusive lock on %s: %w", path, err)
	}
	defer lk.Unlock()
	return fn()
}

// WithShared takes a shared lock on path's sibling lockfile for the duration
// of fn.
func WithShared(path string, fn func() error) error {
	lk := flock.New(sibling(path))
	if err := lk.RLock(); err != nil {
		return fmt.Errorf("acquiring shared lock on %s: %w", path, err)
	}
	defer lk.Unlock()
	return fn()
}

// AtomicWriteJSON writes v to path as JSON via write-temp, fsync, rename,
// under an exclusive lock on path's sibling lockfile.
func AtomicWriteJSON(path string, v any) error {
	return WithExclusive(path, func() error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return err
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}

		return os.Rename(tmpPath, path)
	})
}

// ReadJSON reads and decodes path under a shared lock. A missing file is
// reported via os.IsNotExist on the returned error.
func ReadJSON(path string, v any) error {
	return WithShared(path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, v)
	})
}

// Exists reports whether path is present, without taking any lock.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path under an exclusive lock; the sibling .lock file is
// left in place.
func Remove(path string) error {
	return WithExclusive(path, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// AppendLine appends one line (with a trailing newline) to path under an
// exclusive lock, creating the file and its parent directory if needed.
func AppendLine(path, line string) error {
	return WithExclusive(path, func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteString(line + "\n")
		return err
	})
}
