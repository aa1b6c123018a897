// Package syncmerge is the sub-engine the sync engine hands off to when a
// shared submodule's physical instances have diverged and no linear tip
// exists.
//
// Grounded on original_source/sync_merge.py: attempt_divergence_merge (two-
// way or octopus merge in a chosen workspace), continue_sync_merge, and
// abort_sync_merge.
package syncmerge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Cleanroom-Labs/grove/internal/controldir"
	"github.com/Cleanroom-Labs/grove/internal/journal"
	"github.com/Cleanroom-Labs/grove/internal/obslog"
	"github.com/Cleanroom-Labs/grove/internal/statestore"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
	"github.com/google/uuid"
)

type Engine struct {
	RepoRoot string
	Logger   *journal.Journal
	debug    *log.Logger
	store    *statestore.Store[State]
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
		Logger:   journal.New(shared, "sync-merge"),
		debug:    obslog.New(shared, "sync-merge"),
		store:    statestore.New[State](worktree, "sync-merge-state.json"),
	}, nil
}

// Instance is one physical copy of the diverged shared submodule.
type Instance struct {
	Path string
	SHA  string
}

// Result is what the sync engine continues with on success.
type Result struct {
	MergedSHA     string
	WorkspacePath string
	Description   string
}

// Attempt chooses a workspace, fetches every divergent revision into it,
// computes the pairwise merge-base, checks out the first divergent
// revision, then merges the remainder (two-way for exactly one, octopus
// otherwise).
func (e *Engine) Attempt(ctx context.Context, groupName string, instances []Instance, standaloneRepo string) (*Result, error) {
	attemptID := newWorkspaceName()
	workspace := standaloneRepo
	if workspace == "" {
		workspace = instances[0].Path
	}
	e.debug.Printf("sync-merge %s (attempt %s): workspace=%s, %d instances", groupName, attemptID, workspace, len(instances))

	d := vcsdriver.New(workspace)
	for _, inst := range instances {
		if inst.Path == workspace {
			continue
		}
		if _, err := d.Run(ctx, "fetch", inst.Path, inst.SHA); err != nil {
			return nil, err
		}
	}

	shas := make([]string, len(instances))
	for i, inst := range instances {
		shas[i] = inst.SHA
	}
	base, err := d.MergeBase(ctx, shas...)
	if err != nil {
		return nil, err
	}

	if _, err := d.Checkout(ctx, instances[0].SHA); err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("sync-merge %s: combine %d divergent instances", groupName, len(instances))
	args := append([]string{"merge", "--no-edit", "-m", desc}, shas[1:]...)
	res, err := d.Run(ctx, args...)
	if err != nil {
		return nil, err
	}

	if !res.Ok() {
		st := &State{
			GroupName:     groupName,
			StartedAt:     time.Now().UTC().Format(time.RFC3339),
			WorkspacePath: workspace,
			BaseCommit:    base,
			ConflictSHA:   instances[0].SHA,
		}
		for i, inst := range instances {
			status := "pending"
			if i == 0 {
				status = "base"
			}
			st.DivergedCommits = append(st.DivergedCommits, DivergedEntry{SHA: inst.SHA, SourcePath: inst.Path, Status: status})
		}
		if err := e.store.Save(st); err != nil {
			return nil, err
		}
		e.Logger.Log(journal.Paused, fmt.Sprintf("%s: sync-merge conflict in workspace %s", groupName, workspace))
		return nil, fmt.Errorf("sync-merge paused: conflict combining %s", groupName)
	}

	mergedSHA, err := d.CommitSHA(ctx, false)
	if err != nil {
		return nil, err
	}
	e.Logger.Log(journal.Done, fmt.Sprintf("%s: sync-merge produced %s", groupName, mergedSHA))
	return &Result{MergedSHA: mergedSHA, WorkspacePath: workspace, Description: desc}, nil
}

// Continue verifies the pending merge is resolved and commits it.
func (e *Engine) Continue(ctx context.Context) (*Result, error) {
	st, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	d := vcsdriver.New(st.WorkspacePath)

	unmerged, err := d.UnmergedFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(unmerged) > 0 {
		return nil, fmt.Errorf("workspace %s still has unresolved files: %v", st.WorkspacePath, unmerged)
	}
	if d.HasMergeInProgress(ctx) {
		if _, err := d.CommitNoEdit(ctx); err != nil {
			return nil, err
		}
	}

	mergedSHA, err := d.CommitSHA(ctx, false)
	if err != nil {
		return nil, err
	}
	e.Logger.Log(journal.Continue, fmt.Sprintf("%s: sync-merge resolved at %s", st.GroupName, mergedSHA))
	if err := e.store.Remove(); err != nil {
		return nil, err
	}
	return &Result{MergedSHA: mergedSHA, WorkspacePath: st.WorkspacePath}, nil
}

// Abort runs merge-abort and checks the workspace back out to the first
// divergent revision.
func (e *Engine) Abort(ctx context.Context) error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}
	d := vcsdriver.New(st.WorkspacePath)
	if d.HasMergeInProgress(ctx) {
		if _, err := d.MergeAbort(ctx); err != nil {
			return err
		}
	}
	if len(st.DivergedCommits) > 0 {
		if _, err := d.Checkout(ctx, st.DivergedCommits[0].SHA); err != nil {
			return err
		}
	}
	e.Logger.Log(journal.Abort, fmt.Sprintf("%s: sync-merge aborted", st.GroupName))
	return e.store.Remove()
}

func (e *Engine) Status(ctx context.Context) (*State, error) {
	return e.store.Load()
}

// newWorkspaceName produces a unique identifier that tags one merge
// attempt in its debug-log line.
func newWorkspaceName() string {
	return uuid.NewString()
}
