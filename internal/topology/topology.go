// Package topology persists and diffs structural snapshots of the submodule
// tree, keyed by root revision.
//
// Grounded on original_source/topology.py in full: SubmoduleEntry,
// TopologySnapshot, TopologyDiff, compute_topology_hash, diff_snapshots,
// build_entries and the FIFO-pruned TopologyCache.
package topology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/lockfile"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

const maxEntries = 500

// Entry is one node of a recorded snapshot.
type Entry struct {
	RelPath        string  `json:"rel_path"`
	ParentRelPath  string  `json:"parent_rel_path"`
	AbsoluteURL    string  `json:"absolute_url"`
	RelativeURL    *string `json:"relative_url"`
	PinnedRevision string  `json:"pinned_revision"`
}

func (e Entry) structureKey() string {
	return e.RelPath + "\x00" + e.ParentRelPath + "\x00" + e.AbsoluteURL
}

// Snapshot is a recorded structure of the tree at one root revision.
type Snapshot struct {
	RootRevision  string    `json:"root_revision"`
	Timestamp     string    `json:"timestamp"`
	StructureHash string    `json:"structure_hash"`
	Entries       []Entry   `json:"entries"`
}

// Diff is the five-plus-one change-set comparison between two snapshots,
// indexed by rel_path.
type Diff struct {
	Added               []string `json:"added"`
	Removed             []string `json:"removed"`
	URLChanged          []string `json:"url_changed"`
	RelativeURLChanged  []string `json:"relative_url_changed"`
	Reparented          []string `json:"reparented"`
	PinChanged          []string `json:"pin_changed"`
}

func (d Diff) HasStructuralChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.URLChanged) > 0 ||
		len(d.RelativeURLChanged) > 0 || len(d.Reparented) > 0
}

func (d Diff) IsEmpty() bool {
	return !d.HasStructuralChanges() && len(d.PinChanged) == 0
}

// ComputeHash is the SHA-256 over the sorted (rel_path, parent_rel_path,
// absolute_url) triples, excluding pinned revisions, so two snapshots
// sharing the same tree structure hash identically even if pins differ.
func ComputeHash(entries []Entry) string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.structureKey()
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// document is the on-disk {snapshots: [...]} shape.
type document struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// Cache is the shared, FIFO-pruned store of snapshots.
type Cache struct {
	path string
}

// ForRepo opens the cache at sharedDir/topology.json.
func ForRepo(sharedDir string) *Cache {
	return &Cache{path: filepath.Join(sharedDir, "topology.json")}
}

func (c *Cache) load() (document, error) {
	var doc document
	err := lockfile.ReadJSON(c.path, &doc)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("topology cache is corrupt: %w", err)
	}
	return doc, nil
}

func (c *Cache) save(doc document) error {
	return lockfile.AtomicWriteJSON(c.path, doc)
}

// Get returns the recorded snapshot for rootRev, or false if absent.
func (c *Cache) Get(rootRev string) (Snapshot, bool, error) {
	doc, err := c.load()
	if err != nil {
		return Snapshot{}, false, err
	}
	for _, s := range doc.Snapshots {
		if s.RootRevision == rootRev {
			return s, true, nil
		}
	}
	return Snapshot{}, false, nil
}

// Record builds entries for every non-root repo in the set and appends a
// snapshot for rootRev, deduplicating on an existing key, then prunes FIFO
// at maxEntries.
func (c *Cache) Record(ctx context.Context, rootRev string, set *groverepo.Set, now string) error {
	if _, ok, err := c.Get(rootRev); err != nil {
		return err
	} else if ok {
		return nil
	}

	entries, err := BuildEntries(ctx, set)
	if err != nil {
		return err
	}

	snap := Snapshot{
		RootRevision:  rootRev,
		Timestamp:     now,
		StructureHash: ComputeHash(entries),
		Entries:       entries,
	}

	doc, err := c.load()
	if err != nil {
		return err
	}
	doc.Snapshots = append(doc.Snapshots, snap)
	if len(doc.Snapshots) > maxEntries {
		doc.Snapshots = doc.Snapshots[len(doc.Snapshots)-maxEntries:]
	}
	return c.save(doc)
}

// BuildEntries parses each non-root repo's parent manifest for its URL,
// resolving relative URLs against the parent's own remote.
func BuildEntries(ctx context.Context, set *groverepo.Set) ([]Entry, error) {
	var entries []Entry
	for _, r := range set.Repos {
		if r.ParentPath == "" {
			continue
		}
		parent := set.Repos[r.ParentPath]

		manifestEntries, err := parseGitmodulesURL(filepath.Join(parent.AbsPath, ".gitmodules"))
		if err != nil {
			return nil, err
		}

		var rawURL string
		for rel, url := range manifestEntries {
			if filepath.Join(parent.AbsPath, rel) == r.AbsPath {
				rawURL = url
				break
			}
		}

		var relURL *string
		abs := rawURL
		if isRelativeURL(rawURL) {
			parentURL, _ := vcsdriver.New(parent.AbsPath).RemoteURL(ctx, "origin")
			abs = resolveRelativeURL(parentURL, rawURL)
			copyURL := rawURL
			relURL = &copyURL
		}

		entries = append(entries, Entry{
			RelPath:        r.RelPath,
			ParentRelPath:  parent.RelPath,
			AbsoluteURL:    abs,
			RelativeURL:    relURL,
			PinnedRevision: r.ShortSHA,
		})
	}
	return entries, nil
}

// Compare diffs two recorded snapshots; either key absent reports ok=false
// so the caller can fall back to a simple manifest diff.
func (c *Cache) Compare(revA, revB string) (Diff, bool, error) {
	a, ok, err := c.Get(revA)
	if err != nil || !ok {
		return Diff{}, false, err
	}
	b, ok, err := c.Get(revB)
	if err != nil || !ok {
		return Diff{}, false, err
	}
	return diffSnapshots(a, b), true, nil
}

func diffSnapshots(a, b Snapshot) Diff {
	byPathA := map[string]Entry{}
	for _, e := range a.Entries {
		byPathA[e.RelPath] = e
	}
	byPathB := map[string]Entry{}
	for _, e := range b.Entries {
		byPathB[e.RelPath] = e
	}

	var d Diff
	for path, eb := range byPathB {
		ea, existed := byPathA[path]
		if !existed {
			d.Added = append(d.Added, path)
			continue
		}
		if ea.ParentRelPath != eb.ParentRelPath {
			d.Reparented = append(d.Reparented, path)
		}
		if ea.AbsoluteURL != eb.AbsoluteURL {
			d.URLChanged = append(d.URLChanged, path)
		}
		if !equalRelURL(ea.RelativeURL, eb.RelativeURL) {
			d.RelativeURLChanged = append(d.RelativeURLChanged, path)
		}
		if ea.PinnedRevision != eb.PinnedRevision {
			d.PinChanged = append(d.PinChanged, path)
		}
	}
	for path := range byPathA {
		if _, stillPresent := byPathB[path]; !stillPresent {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.URLChanged)
	sort.Strings(d.RelativeURLChanged)
	sort.Strings(d.Reparented)
	sort.Strings(d.PinChanged)
	return d
}

func equalRelURL(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func parseGitmodulesURL(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	// Minimal re-parse kept local to this package to avoid a groverepo
	// import cycle; format is identical to groverepo's gitmodules parser.
	result := map[string]string{}
	var curPath, curURL string
	flush := func() {
		if curPath != "" {
			result[curPath] = curURL
		}
		curPath, curURL = "", ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[submodule") {
			flush()
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			switch strings.TrimSpace(k) {
			case "path":
				curPath = strings.TrimSpace(v)
			case "url":
				curURL = strings.TrimSpace(v)
			}
		}
	}
	flush()
	return result, nil
}
