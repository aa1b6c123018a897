// Package worktreemerge implements the bottom-up branch merge across every
// repository in the tree, with submodule-pointer conflict auto-resolution.
//
// Grounded on original_source/worktree_merge.py: pre-flight classification,
// _predict_conflicts, _auto_resolve_submodule_conflicts, _get_test_command /
// _run_test, _check_structural_consistency, and the
// start/continue/abort/status action set.
package worktreemerge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/controldir"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/journal"
	"github.com/Cleanroom-Labs/grove/internal/obslog"
	"github.com/Cleanroom-Labs/grove/internal/statestore"
	"github.com/Cleanroom-Labs/grove/internal/testexec"
	"github.com/Cleanroom-Labs/grove/internal/topology"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

var ErrAlreadyRunning = errors.New("a worktree merge is already in progress; run --continue, --abort, or --status")
var ErrUncommittedChanges = errors.New("one or more repos have uncommitted changes; commit or stash before merging")

type Options struct {
	DryRun    bool
	NoRecurse bool
	NoFF      bool
	NoTest    bool
}

type Engine struct {
	RepoRoot string
	Logger   *journal.Journal
	debug    *log.Logger
	store    *statestore.Store[State]
	cache    *topology.Cache
}

func Open(ctx context.Context, repoRoot string) (*Engine, error) {
	shared, err := controldir.Shared(ctx, repoRoot)
	if err != nil {
		return nil, err
	}
	worktree, err := controldir.Worktree(ctx, repoRoot)
	if err != nil {
		return nil, err
	}
	return &Engine{
		RepoRoot: repoRoot,
		Logger:   journal.New(shared, "worktree-merge"),
		debug:    obslog.New(shared, "worktree-merge"),
		store:    statestore.New[State](worktree, "merge-state.json"),
		cache:    topology.ForRepo(shared),
	}, nil
}

// Start runs pre-flight classification, conflict prediction, structural
// consistency warnings, then (unless dry-run) the merge itself.
func (e *Engine) Start(ctx context.Context, branch string, opts Options) error {
	if e.store.Exists() {
		return ErrAlreadyRunning
	}

	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}
	order := groverepo.TopologicalOrder(set)
	if opts.NoRecurse {
		order = []*groverepo.Repo{set.Repos[set.Root]}
	}

	e.Logger.Log(journal.Discover, fmt.Sprintf("%d repos for merge of %s", len(order), branch))
	e.debug.Printf("merge %s: %d repos, no_ff=%v, no_test=%v", branch, len(order), opts.NoFF, opts.NoTest)

	st := &State{
		Branch:    branch,
		NoFF:      opts.NoFF,
		NoTest:    opts.NoTest,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, r := range order {
		d := vcsdriver.New(r.AbsPath)
		entry := RepoEntry{RelPath: r.RelPath}

		uncommitted, err := d.HasUncommittedChanges(ctx)
		if err != nil {
			return err
		}
		if uncommitted {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, r.RelPath)
		}

		branchName, err := d.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		switch {
		case branchName == "":
			entry.Status = StatusSkipped
			entry.Reason = ReasonDetachedHead
		case !d.HasLocalBranch(ctx, branch):
			entry.Status = StatusSkipped
			entry.Reason = ReasonBranchNotFound
		default:
			isAncestor, err := d.IsAncestor(ctx, branch)
			if err != nil {
				return err
			}
			if isAncestor {
				entry.Status = StatusSkipped
				entry.Reason = ReasonAlreadyMerged
			} else {
				entry.Status = StatusPending
			}
		}
		st.Repos = append(st.Repos, entry)
	}

	e.structuralCheck(ctx, set, branch)

	for _, entry := range st.Repos {
		if entry.Status != StatusPending {
			continue
		}
		r := findByRelPath(set, entry.RelPath)
		d := vcsdriver.New(r.AbsPath)
		clean, conflicts, err := d.SimulateMerge(ctx, branch)
		if err != nil {
			return err
		}
		if !clean {
			fmt.Printf("predicted conflict in %s: %v\n", entry.RelPath, conflicts)
			e.Logger.Log(journal.Conflict, fmt.Sprintf("predicted %s: %v", entry.RelPath, conflicts))
		}
	}

	if opts.DryRun {
		fmt.Println("[dry-run] stopping after conflict prediction")
		return nil
	}

	if err := e.store.Save(st); err != nil {
		return err
	}
	return e.run(ctx, set, st, 0, opts)
}

func (e *Engine) structuralCheck(ctx context.Context, set *groverepo.Set, branch string) {
	root := set.Repos[set.Root]
	if root == nil {
		return
	}
	d := vcsdriver.New(root.AbsPath)
	currentRev, err := d.CommitSHA(ctx, true)
	if err != nil {
		return
	}
	branchRev, err := d.Run(ctx, "rev-parse", "--short=7", branch)
	if err != nil || !branchRev.Ok() {
		return
	}

	diff, ok, err := e.cache.Compare(currentRev, trimNL(branchRev.Stdout))
	if err != nil || !ok {
		fmt.Println("structural check: no recorded topology snapshot for one or both revisions; falling back to manifest comparison is not available without a checkout")
		return
	}
	if diff.HasStructuralChanges() {
		fmt.Printf("structural changes between HEAD and %s: added=%v removed=%v url-changed=%v relative-url-changed=%v reparented=%v\n",
			branch, diff.Added, diff.Removed, diff.URLChanged, diff.RelativeURLChanged, diff.Reparented)
	}
}

func trimNL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func findByRelPath(set *groverepo.Set, relPath string) *groverepo.Repo {
	for _, r := range set.Repos {
		if r.RelPath == relPath {
			return r
		}
	}
	return nil
}

func (e *Engine) run(ctx context.Context, set *groverepo.Set, st *State, startIdx int, opts Options) error {
	cfg, err := config.Load(e.RepoRoot)
	if err != nil {
		return err
	}

	for i := startIdx; i < len(st.Repos); i++ {
		entry := &st.Repos[i]
		if entry.Status != StatusPending {
			continue
		}
		r := findByRelPath(set, entry.RelPath)
		d := vcsdriver.New(r.AbsPath)

		if entry.PreMergeHead == "" {
			sha, err := d.CommitSHA(ctx, false)
			if err != nil {
				return err
			}
			entry.PreMergeHead = sha
		}
		if err := e.store.Save(st); err != nil {
			return err
		}

		res, err := d.Merge(ctx, st.Branch, st.NoFF)
		if err != nil {
			return err
		}
		e.Logger.Log(journal.Merge, fmt.Sprintf("%s: merge %s", entry.RelPath, st.Branch))

		if !res.Ok() {
			resolved, err := e.tryAutoResolve(ctx, d, set, st, i)
			if err != nil {
				return err
			}
			if !resolved {
				entry.Status = StatusPaused
				entry.Reason = ReasonConflict
				if err := e.store.Save(st); err != nil {
					return err
				}
				e.Logger.Log(journal.Paused, fmt.Sprintf("%s: conflict", entry.RelPath))
				return fmt.Errorf("merge paused: conflict in %s", entry.RelPath)
			}
			if _, err := d.CommitNoEdit(ctx); err != nil {
				return err
			}
			e.Logger.Log(journal.Commit, fmt.Sprintf("%s: auto-resolved submodule conflict", entry.RelPath))
		}

		if !st.NoTest {
			localPath := r.AbsPath
			if entry.RelPath == "." {
				localPath = ""
			}
			cmd, skip := testexec.ResolveWorktreeMerge(cfg, entry.RelPath, localPath)
			if !skip {
				outcome, err := testexec.Run(ctx, r.AbsPath, cmd)
				if err != nil {
					return err
				}
				e.Logger.Log(journal.Test, fmt.Sprintf("%s: %v", entry.RelPath, outcome.Passed))
				if !outcome.Passed {
					entry.Status = StatusPaused
					entry.Reason = ReasonTestFailed
					if err := e.store.Save(st); err != nil {
						return err
					}
					e.Logger.Log(journal.Paused, fmt.Sprintf("%s: test failed", entry.RelPath))
					return fmt.Errorf("merge paused: test failed in %s", entry.RelPath)
				}
			}
		}

		postSHA, err := d.CommitSHA(ctx, false)
		if err != nil {
			return err
		}
		entry.PostMergeHead = postSHA
		entry.Status = StatusMerged
		if err := e.store.Save(st); err != nil {
			return err
		}
	}

	e.Logger.Log(journal.Done, fmt.Sprintf("merge %s complete", st.Branch))
	return e.store.Remove()
}

// tryAutoResolve implements submodule-pointer conflict auto-resolution: for
// every conflicting path that is itself a submodule entry AND corresponds to
// a repo earlier in this merge whose status is merged, stage the current
// (post-merge) pinned revision.
func (e *Engine) tryAutoResolve(ctx context.Context, d *vcsdriver.Driver, set *groverepo.Set, st *State, parentIdx int) (bool, error) {
	conflicts, err := d.UnmergedFiles(ctx)
	if err != nil {
		return false, err
	}
	if len(conflicts) == 0 {
		return true, nil
	}

	parent := findByRelPath(set, st.Repos[parentIdx].RelPath)

	mergedChildren := map[string]bool{}
	for j := 0; j < parentIdx; j++ {
		if st.Repos[j].Status == StatusMerged {
			mergedChildren[st.Repos[j].RelPath] = true
		}
	}

	allResolved := true
	for _, path := range conflicts {
		childAbs := filepath.Join(parent.AbsPath, path)
		child := findByAbsPath(set, childAbs)
		if child == nil || !mergedChildren[child.RelPath] {
			allResolved = false
			continue
		}
		if _, err := d.Add(ctx, path); err != nil {
			return false, err
		}
		e.Logger.Log(journal.Diag, fmt.Sprintf("auto-resolved submodule pointer conflict at %s", path))
	}
	return allResolved, nil
}

func findByAbsPath(set *groverepo.Set, absPath string) *groverepo.Repo {
	return set.Repos[absPath]
}

// Continue verifies zero unmerged files, commits a mid-flight merge if any,
// then resumes at the paused repo, whose tests are run again whether the
// pause was a conflict or a test failure.
func (e *Engine) Continue(ctx context.Context, opts Options) error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}
	idx := st.pausedIndex()
	if idx < 0 {
		return fmt.Errorf("no paused merge entry")
	}

	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}
	entry := &st.Repos[idx]
	r := findByRelPath(set, entry.RelPath)
	d := vcsdriver.New(r.AbsPath)

	unmerged, err := d.UnmergedFiles(ctx)
	if err != nil {
		return err
	}
	if len(unmerged) > 0 {
		return fmt.Errorf("repo %s still has unmerged files: %v", entry.RelPath, unmerged)
	}

	if d.HasMergeInProgress(ctx) {
		if _, err := d.CommitNoEdit(ctx); err != nil {
			return err
		}
	}

	entry.Status = StatusPending
	entry.Reason = ""
	if err := e.store.Save(st); err != nil {
		return err
	}

	e.Logger.Log(journal.Continue, fmt.Sprintf("resuming at %s", entry.RelPath))
	return e.run(ctx, set, st, idx, opts)
}

// Abort aborts any in-flight merge on the paused repo, then hard-resets
// every merged repo to its pre_merge_head, parents before children.
func (e *Engine) Abort(ctx context.Context) error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}
	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}

	if idx := st.pausedIndex(); idx >= 0 {
		r := findByRelPath(set, st.Repos[idx].RelPath)
		d := vcsdriver.New(r.AbsPath)
		if d.HasMergeInProgress(ctx) {
			if _, err := d.MergeAbort(ctx); err != nil {
				return err
			}
		}
	}

	for i := len(st.Repos) - 1; i >= 0; i-- {
		entry := st.Repos[i]
		if entry.Status != StatusMerged {
			continue
		}
		r := findByRelPath(set, entry.RelPath)
		d := vcsdriver.New(r.AbsPath)
		if _, err := d.ResetHard(ctx, entry.PreMergeHead); err != nil {
			return err
		}
	}

	e.Logger.Log(journal.Abort, fmt.Sprintf("aborted merge of %s", st.Branch))
	return e.store.Remove()
}

func (e *Engine) Status(ctx context.Context) (*State, error) {
	return e.store.Load()
}
