package topology

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Cleanroom-Labs/grove/internal/groverepo"
)

func TestComputeHashIsOrderIndependent(t *testing.T) {
	a := []Entry{
		{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "https://example.com/a.git"},
		{RelPath: "libs/b", ParentRelPath: ".", AbsoluteURL: "https://example.com/b.git"},
	}
	b := []Entry{a[1], a[0]}

	if ComputeHash(a) != ComputeHash(b) {
		t.Errorf("ComputeHash should not depend on entry order")
	}
}

func TestComputeHashIgnoresPinnedRevision(t *testing.T) {
	a := []Entry{{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "abc"}}
	b := []Entry{{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "def"}}
	if ComputeHash(a) != ComputeHash(b) {
		t.Errorf("ComputeHash should ignore PinnedRevision")
	}
}

func TestComputeHashChangesOnStructuralChange(t *testing.T) {
	a := []Entry{{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "u1"}}
	b := []Entry{{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "u2"}}
	if ComputeHash(a) == ComputeHash(b) {
		t.Errorf("ComputeHash should change when AbsoluteURL differs")
	}
}

func strp(s string) *string { return &s }

func TestDiffSnapshotsAllChangeSets(t *testing.T) {
	a := Snapshot{Entries: []Entry{
		{RelPath: "libs/stable", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "111"},
		{RelPath: "libs/removed", ParentRelPath: ".", AbsoluteURL: "u"},
		{RelPath: "libs/reparent", ParentRelPath: ".", AbsoluteURL: "u"},
		{RelPath: "libs/urlchg", ParentRelPath: ".", AbsoluteURL: "old"},
		{RelPath: "libs/relchg", ParentRelPath: ".", AbsoluteURL: "u", RelativeURL: strp("./old")},
		{RelPath: "libs/pinchg", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "111"},
	}}
	b := Snapshot{Entries: []Entry{
		{RelPath: "libs/stable", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "111"},
		{RelPath: "libs/added", ParentRelPath: ".", AbsoluteURL: "u"},
		{RelPath: "libs/reparent", ParentRelPath: "libs/other", AbsoluteURL: "u"},
		{RelPath: "libs/urlchg", ParentRelPath: ".", AbsoluteURL: "new"},
		{RelPath: "libs/relchg", ParentRelPath: ".", AbsoluteURL: "u", RelativeURL: strp("./new")},
		{RelPath: "libs/pinchg", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "222"},
	}}

	d := diffSnapshots(a, b)

	assertSlice(t, "Added", d.Added, []string{"libs/added"})
	assertSlice(t, "Removed", d.Removed, []string{"libs/removed"})
	assertSlice(t, "Reparented", d.Reparented, []string{"libs/reparent"})
	assertSlice(t, "URLChanged", d.URLChanged, []string{"libs/urlchg"})
	assertSlice(t, "RelativeURLChanged", d.RelativeURLChanged, []string{"libs/relchg"})
	assertSlice(t, "PinChanged", d.PinChanged, []string{"libs/pinchg"})

	if !d.HasStructuralChanges() {
		t.Errorf("HasStructuralChanges() = false, want true")
	}
	if d.IsEmpty() {
		t.Errorf("IsEmpty() = true, want false")
	}
}

func TestDiffSnapshotsEmptyWhenIdentical(t *testing.T) {
	s := Snapshot{Entries: []Entry{{RelPath: "libs/a", ParentRelPath: ".", AbsoluteURL: "u", PinnedRevision: "1"}}}
	d := diffSnapshots(s, s)
	if !d.IsEmpty() {
		t.Errorf("IsEmpty() = false for identical snapshots, want true")
	}
}

func assertSlice(t *testing.T, name string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestCacheRecordGetAndDedup(t *testing.T) {
	cache := ForRepo(t.TempDir())
	ctx := context.Background()

	snap := Snapshot{RootRevision: "rev1", Entries: []Entry{{RelPath: "libs/a", AbsoluteURL: "u"}}}
	if err := cache.save(document{Snapshots: []Snapshot{snap}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := cache.Get("rev1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.RootRevision != "rev1" {
		t.Fatalf("Get(rev1) = (%+v, %v), want the recorded snapshot", got, ok)
	}

	_, ok, err = cache.Get("rev-missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("Get(missing) ok = true, want false")
	}

	set := &groverepo.Set{Root: t.TempDir(), Repos: map[string]*groverepo.Repo{}}
	if err := cache.Record(ctx, "rev1", set, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	loaded, err := cache.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Snapshots) != 1 {
		t.Errorf("Record(rev1) again: %d snapshots, want 1 (deduplicated)", len(loaded.Snapshots))
	}
}

func TestCacheCompareReturnsOkFalseOnMissingRevision(t *testing.T) {
	cache := ForRepo(t.TempDir())
	_, ok, err := cache.Compare("a", "b")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if ok {
		t.Errorf("Compare() ok = true for an empty cache, want false")
	}
}

func TestCacheComparePairOfRecordedSnapshots(t *testing.T) {
	cache := ForRepo(t.TempDir())

	snapA := Snapshot{RootRevision: "rev-a", Entries: []Entry{{RelPath: "libs/a", AbsoluteURL: "u"}}}
	snapB := Snapshot{RootRevision: "rev-b", Entries: []Entry{
		{RelPath: "libs/a", AbsoluteURL: "u"},
		{RelPath: "libs/b", AbsoluteURL: "u2"},
	}}
	if err := cache.save(document{Snapshots: []Snapshot{snapA, snapB}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	diff, ok, err := cache.Compare("rev-a", "rev-b")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !ok {
		t.Fatalf("Compare() ok = false, want true")
	}
	assertSlice(t, "Added", diff.Added, []string{"libs/b"})
}

func TestCacheRecordPrunesFIFO(t *testing.T) {
	cache := ForRepo(t.TempDir())
	var snaps []Snapshot
	for i := 0; i < maxEntries+5; i++ {
		snaps = append(snaps, Snapshot{RootRevision: "rev-" + itoa(i)})
	}
	doc := document{Snapshots: snaps}
	if err := cache.save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := cache.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Snapshots) != maxEntries+5 {
		t.Fatalf("pre-condition: want %d snapshots loaded, got %d", maxEntries+5, len(loaded.Snapshots))
	}

	// Record with a brand-new root revision should trigger FIFO pruning
	// down to maxEntries total.
	set := &groverepo.Set{Root: t.TempDir(), Repos: map[string]*groverepo.Repo{}}
	if err := cache.Record(context.Background(), "newest", set, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	loaded, err = cache.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Snapshots) != maxEntries {
		t.Fatalf("len(Snapshots) = %d, want %d after pruning", len(loaded.Snapshots), maxEntries)
	}
	if loaded.Snapshots[len(loaded.Snapshots)-1].RootRevision != "newest" {
		t.Errorf("newest snapshot should be retained after pruning")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestParseGitmodulesURLMissingFile(t *testing.T) {
	result, err := parseGitmodulesURL(filepath.Join(t.TempDir(), ".gitmodules"))
	if err != nil {
		t.Fatalf("parseGitmodulesURL: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("want empty map for missing file, got %v", result)
	}
}

func TestParseGitmodulesURLExtractsPathAndURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitmodules")
	content := `[submodule "a"]
	path = libs/a
	url = https://example.com/a.git
[submodule "b"]
	path = libs/b
	url = ../sibling.git
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := parseGitmodulesURL(path)
	if err != nil {
		t.Fatalf("parseGitmodulesURL: %v", err)
	}
	if result["libs/a"] != "https://example.com/a.git" {
		t.Errorf("libs/a = %q", result["libs/a"])
	}
	if result["libs/b"] != "../sibling.git" {
		t.Errorf("libs/b = %q", result["libs/b"])
	}
}
