package check

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func initRepo(t *testing.T, dir, remoteURL string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.name", "test")
	runGit(t, dir, "config", "user.email", "test@example.com")
	if remoteURL != "" {
		runGit(t, dir, "remote", "add", "origin", remoteURL)
	}
}

func TestCheckRefsFindsDetachedHead(t *testing.T) {
	set := &groverepo.Set{Repos: map[string]*groverepo.Repo{
		"/a": {RelPath: "libs/a", Detached: true},
		"/b": {RelPath: "libs/b", Detached: false},
	}}
	findings := CheckRefs(context.Background(), set)
	if len(findings) != 1 || findings[0].RelPath != "libs/a" {
		t.Fatalf("CheckRefs() = %+v, want just libs/a", findings)
	}
}

func TestCheckRefsEmptyWhenAllOnRefs(t *testing.T) {
	set := &groverepo.Set{Repos: map[string]*groverepo.Repo{
		"/a": {RelPath: "libs/a", Detached: false},
	}}
	if findings := CheckRefs(context.Background(), set); len(findings) != 0 {
		t.Errorf("CheckRefs() = %+v, want empty", findings)
	}
}

func TestCheckSyncGroupsReportsMajorityAndDiffering(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	initRepo(t, root, "")

	majorityA := filepath.Join(base, "majorityA")
	initRepo(t, majorityA, "https://example.com/shared-lib.git")

	majorityB := filepath.Join(base, "majorityB")
	initRepo(t, majorityB, "https://example.com/shared-lib.git")

	differing := filepath.Join(base, "differing")
	initRepo(t, differing, "https://example.com/shared-lib.git")

	drifted := filepath.Join(base, "drifted")
	initRepo(t, drifted, "https://example.com/shared-lib.git")

	set := &groverepo.Set{
		Root: root,
		Repos: map[string]*groverepo.Repo{
			root:      {AbsPath: root, RelPath: "."},
			majorityA: {AbsPath: majorityA, RelPath: "libs/majorityA", ParentPath: root, SHA: "sha-common"},
			majorityB: {AbsPath: majorityB, RelPath: "libs/majorityB", ParentPath: root, SHA: "sha-common"},
			differing: {AbsPath: differing, RelPath: "libs/differing", ParentPath: root, SHA: "sha-other"},
			drifted:   {AbsPath: drifted, RelPath: "libs/drifted", ParentPath: root, SHA: "sha-drifted"},
		},
	}

	groups := map[string]config.SyncGroup{
		"shared": {Name: "shared", URLMatch: "shared-lib", AllowDrift: []string{"libs/drifted"}},
	}

	findings, err := CheckSyncGroups(context.Background(), set, groups)
	if err != nil {
		t.Fatalf("CheckSyncGroups: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("len(findings) = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.MajoritySHA != "sha-common" {
		t.Errorf("MajoritySHA = %q, want sha-common", f.MajoritySHA)
	}
	if len(f.Differing) != 1 || f.Differing[0] != "libs/differing" {
		t.Errorf("Differing = %v, want [libs/differing]", f.Differing)
	}
	if len(f.DriftAllowed) != 1 || f.DriftAllowed[0] != "libs/drifted" {
		t.Errorf("DriftAllowed = %v, want [libs/drifted]", f.DriftAllowed)
	}
}

func TestExcludePathsOnlyMatchesConfiguredGroups(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	initRepo(t, root, "")

	matching := filepath.Join(base, "matching")
	initRepo(t, matching, "https://example.com/shared-lib.git")

	unrelated := filepath.Join(base, "unrelated")
	initRepo(t, unrelated, "https://example.com/other.git")

	set := &groverepo.Set{
		Root: root,
		Repos: map[string]*groverepo.Repo{
			root:      {AbsPath: root, RelPath: "."},
			matching:  {AbsPath: matching, RelPath: "libs/matching", ParentPath: root},
			unrelated: {AbsPath: unrelated, RelPath: "libs/unrelated", ParentPath: root},
		},
	}
	groups := map[string]config.SyncGroup{
		"shared": {Name: "shared", URLMatch: "shared-lib"},
	}

	exclude := ExcludePaths(context.Background(), set, groups)
	if !exclude["libs/matching"] {
		t.Errorf("ExcludePaths() missing libs/matching")
	}
	if exclude["libs/unrelated"] {
		t.Errorf("ExcludePaths() should not include libs/unrelated")
	}
}
