// Package statestore persists the per-worktree JSON state documents
// (cascade-state.json, merge-state.json, sync-merge-state.json) that make
// every engine resumable.
//
// Grounded on original_source's dataclass save()/load()/remove() trio,
// repeated per engine in cascade.py, worktree_merge.py and sync_merge.py;
// unified here into one generic helper over lockfile's atomic JSON
// primitives so each engine only supplies its document type.
package statestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Cleanroom-Labs/grove/internal/lockfile"
)

// Store persists one document type at a fixed path within a worktree's
// private control directory.
type Store[T any] struct {
	path string
}

// New builds a Store for filename ("cascade-state.json", "merge-state.json",
// "sync-merge-state.json") under worktreeDir.
func New[T any](worktreeDir, filename string) *Store[T] {
	return &Store[T]{path: filepath.Join(worktreeDir, filename)}
}

// Exists reports whether a state document is currently live — the signal
// every engine uses to refuse a concurrent start.
func (s *Store[T]) Exists() bool {
	return lockfile.Exists(s.path)
}

// Save atomically persists doc, creating the control directory if needed.
func (s *Store[T]) Save(doc *T) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return lockfile.AtomicWriteJSON(s.path, doc)
}

// Load reads and decodes the current document. Malformed JSON is reported
// as a corrupt-state error; the caller must refuse to proceed on it.
func (s *Store[T]) Load() (*T, error) {
	var doc T
	if err := lockfile.ReadJSON(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("state document %s is corrupt: %w", s.path, err)
	}
	return &doc, nil
}

// Remove deletes the state document, ending the engine's live state.
func (s *Store[T]) Remove() error {
	return lockfile.Remove(s.path)
}
