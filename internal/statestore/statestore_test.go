package statestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Branch string
	Step   int
}

func TestSaveLoadRemoveRoundTrip(t *testing.T) {
	s := New[doc](t.TempDir(), "merge-state.json")

	if s.Exists() {
		t.Fatalf("Exists() = true before any Save")
	}

	want := &doc{Branch: "feature/x", Step: 2}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists() {
		t.Fatalf("Exists() = false after Save")
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Exists() {
		t.Errorf("Exists() = true after Remove")
	}
}

func TestLoadMissingReturnsErrNotExist(t *testing.T) {
	s := New[doc](t.TempDir(), "merge-state.json")
	_, err := s.Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadCorruptDocumentIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merge-state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New[doc](dir, "merge-state.json")
	if _, err := s.Load(); err == nil {
		t.Fatalf("want an error for malformed state JSON")
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested", "worktree")
	s := New[doc](nested, "cascade-state.json")

	if err := s.Save(&doc{Branch: "main"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(nested, "cascade-state.json")); err != nil {
		t.Errorf("expected state file to exist: %v", err)
	}
}
