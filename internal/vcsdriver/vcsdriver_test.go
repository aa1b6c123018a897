package vcsdriver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
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

	run("init", "-q", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	run("add", "f.txt")
	run("commit", "-q", "-m", "initial")

	return dir
}

func TestRunCapturesExitCodeWithoutError(t *testing.T) {
	d := New(setupTestRepo(t))
	res, err := d.Run(context.Background(), "rev-parse", "--verify", "refs/heads/does-not-exist")
	if err != nil {
		t.Fatalf("Run returned an error for a normal non-zero exit: %v", err)
	}
	if res.Ok() {
		t.Fatalf("want non-zero exit for a missing ref")
	}
}

func TestRunLaunchFailureReturnsError(t *testing.T) {
	// A working directory that does not exist fails at process-launch time
	// (chdir), which is the one case Run must surface as a Go error rather
	// than as a captured exit code.
	d := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := d.Run(context.Background(), "status"); err == nil {
		t.Fatalf("want a launch error for a nonexistent working directory")
	}
}

func TestCurrentBranchAndCommitSHA(t *testing.T) {
	d := New(setupTestRepo(t))
	ctx := context.Background()

	branch, err := d.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want main", branch)
	}

	sha, err := d.CommitSHA(ctx, false)
	if err != nil {
		t.Fatalf("CommitSHA: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("CommitSHA() = %q, want 40 hex chars", sha)
	}

	short, err := d.CommitSHA(ctx, true)
	if err != nil {
		t.Fatalf("CommitSHA(short): %v", err)
	}
	if len(short) < 7 || len(short) >= 40 {
		t.Errorf("CommitSHA(short) = %q, want a short hash", short)
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	dir := setupTestRepo(t)
	d := New(dir)
	ctx := context.Background()

	clean, err := d.HasUncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if clean {
		t.Fatalf("want a freshly committed repo to be clean")
	}

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("two\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dirty, err := d.HasUncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if !dirty {
		t.Fatalf("want dirty after an uncommitted edit")
	}
}

func TestDetachedHeadHasNoBranch(t *testing.T) {
	dir := setupTestRepo(t)
	d := New(dir)
	ctx := context.Background()

	sha, err := d.CommitSHA(ctx, false)
	if err != nil {
		t.Fatalf("CommitSHA: %v", err)
	}
	if _, err := d.Checkout(ctx, sha); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	branch, err := d.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "" {
		t.Errorf("CurrentBranch() in detached HEAD = %q, want empty", branch)
	}
}

func TestIsAncestorAndMergeBase(t *testing.T) {
	dir := setupTestRepo(t)
	d := New(dir)
	ctx := context.Background()

	first, _ := d.CommitSHA(ctx, false)

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("three\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := d.Add(ctx, "f.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := d.Commit(ctx, "second"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second, _ := d.CommitSHA(ctx, false)

	isAncestor, err := d.IsAncestor(ctx, first)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !isAncestor {
		t.Errorf("want %s to be an ancestor of HEAD", first)
	}

	base, err := d.MergeBase(ctx, first, second)
	if err != nil {
		t.Fatalf("MergeBase: %v", err)
	}
	if base != first {
		t.Errorf("MergeBase() = %q, want %q", base, first)
	}
}

func TestHasMergeInProgressFalseOutsideMerge(t *testing.T) {
	d := New(setupTestRepo(t))
	if d.HasMergeInProgress(context.Background()) {
		t.Errorf("want no merge in progress in a fresh repo")
	}
}

func runGitIn(t *testing.T, dir string, args ...string) {
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

func TestSimulateMergeCleanRestoresWorkingTree(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	runGitIn(t, dir, "checkout", "-q", "-b", "feature")
	if err := os.WriteFile(filepath.Join(dir, "g.txt"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runGitIn(t, dir, "add", "g.txt")
	runGitIn(t, dir, "commit", "-q", "-m", "add g.txt")
	runGitIn(t, dir, "checkout", "-q", "main")

	d := New(dir)
	clean, conflicting, err := d.SimulateMerge(ctx, "feature")
	if err != nil {
		t.Fatalf("SimulateMerge: %v", err)
	}
	if !clean {
		t.Fatalf("want a clean simulated merge, got conflicts: %v", conflicting)
	}
	if d.HasMergeInProgress(ctx) {
		t.Errorf("SimulateMerge left a merge in progress")
	}
	if dirty, _ := d.HasUncommittedChanges(ctx); dirty {
		t.Errorf("SimulateMerge left the working tree dirty")
	}
}

func TestSimulateMergeConflictRestoresWorkingTree(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	runGitIn(t, dir, "checkout", "-q", "-b", "feature")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("feature\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runGitIn(t, dir, "commit", "-q", "-am", "feature change")
	runGitIn(t, dir, "checkout", "-q", "main")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runGitIn(t, dir, "commit", "-q", "-am", "main change")

	d := New(dir)
	clean, conflicting, err := d.SimulateMerge(ctx, "feature")
	if err != nil {
		t.Fatalf("SimulateMerge: %v", err)
	}
	if clean {
		t.Fatalf("want a conflicting simulated merge")
	}
	if len(conflicting) != 1 || conflicting[0] != "f.txt" {
		t.Errorf("conflicting = %v, want [f.txt]", conflicting)
	}
	if d.HasMergeInProgress(ctx) {
		t.Errorf("SimulateMerge left a merge in progress after a conflict")
	}
	if dirty, _ := d.HasUncommittedChanges(ctx); dirty {
		t.Errorf("SimulateMerge left the working tree dirty after a conflict")
	}
}

func TestSimulateMergeRefusesWhenMergeAlreadyInProgress(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	runGitIn(t, dir, "checkout", "-q", "-b", "feature")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("feature\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runGitIn(t, dir, "commit", "-q", "-am", "feature change")
	runGitIn(t, dir, "checkout", "-q", "main")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runGitIn(t, dir, "commit", "-q", "-am", "main change")

	// Leave a real merge in progress before calling SimulateMerge.
	cmd := exec.Command("git", "merge", "--no-ff", "feature")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	cmd.Run() // expected to fail with a conflict, leaving MERGE_HEAD behind

	d := New(dir)
	if !d.HasMergeInProgress(ctx) {
		t.Fatalf("test setup failed to leave a merge in progress")
	}

	_, _, err := d.SimulateMerge(ctx, "feature")
	if err == nil {
		t.Fatalf("want SimulateMerge to refuse when a merge is already in progress")
	}
	if !d.HasMergeInProgress(ctx) {
		t.Errorf("SimulateMerge must not touch a pre-existing merge in progress")
	}
}
