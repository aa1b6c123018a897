// Package sync aligns every physical instance of a shared submodule to one
// target revision and commits the pointer update upward.
//
// Grounded on original_source/sync.py: SyncSubmodule discovery, the three
// target-resolution modes (explicit / local tip / remote),
// resolve_local_tip's pairwise ancestor search, commit/push phases ordered
// deepest-first, and the validation gate via groverepo.Validate with
// check_sync=true.
package sync

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/controldir"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/journal"
	"github.com/Cleanroom-Labs/grove/internal/obslog"
	"github.com/Cleanroom-Labs/grove/internal/syncmerge"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

var hexRevision = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// LooksLikeRevision reports whether arg is a 7-40 character hex string, used
// by the CLI to disambiguate a group name from a bare revision argument.
func LooksLikeRevision(arg string) bool {
	return hexRevision.MatchString(arg)
}

type Instance struct {
	Repo         *groverepo.Repo
	Parent       *groverepo.Repo
	RelInParent  string
}

type Options struct {
	Remote     bool
	DryRun     bool
	NoPush     bool
	SkipChecks bool
}

type Engine struct {
	RepoRoot string
	Logger   *journal.Journal
	debug    *log.Logger
}

func Open(ctx context.Context, repoRoot string) (*Engine, error) {
	shared, err := controldir.Shared(ctx, repoRoot)
	if err != nil {
		return nil, err
	}
	return &Engine{
		RepoRoot: repoRoot,
		Logger:   journal.New(shared, "sync"),
		debug:    obslog.New(shared, "sync"),
	}, nil
}

// discoverInstances collects every discovered non-root repo whose origin
// remote URL contains urlMatch, dropping drift-allowed paths from the
// synchronisation set (they remain visible separately). The URLs recorded in
// the parents' .gitmodules files are not read.
func (e *Engine) discoverInstances(ctx context.Context, set *groverepo.Set, urlMatch string, allowDrift []string) (sync, drifted []Instance, err error) {
	drift := map[string]bool{}
	for _, p := range allowDrift {
		drift[p] = true
	}

	for _, r := range set.Repos {
		if r.ParentPath == "" {
			continue
		}
		parent := set.Repos[r.ParentPath]

		childDriver := vcsdriver.New(r.AbsPath)
		childURL, cerr := childDriver.RemoteURL(ctx, "origin")
		if cerr != nil || !strings.Contains(childURL, urlMatch) {
			continue
		}

		relInParent, rerr := filepath.Rel(parent.AbsPath, r.AbsPath)
		if rerr != nil {
			continue
		}
		inst := Instance{Repo: r, Parent: parent, RelInParent: relInParent}
		if drift[r.RelPath] {
			drifted = append(drifted, inst)
		} else {
			sync = append(sync, inst)
		}
	}
	return sync, drifted, nil
}

// resolveLocalTip computes the tip among instances' pinned revisions: the
// revision that is a descendant of every other. Returns ("", false) when no
// linear tip exists (divergence).
func (e *Engine) resolveLocalTip(ctx context.Context, instances []Instance) (string, bool) {
	distinct := map[string]*groverepo.Repo{}
	for _, inst := range instances {
		distinct[inst.Repo.SHA] = inst.Repo
	}
	if len(distinct) == 1 {
		for sha := range distinct {
			return sha, true
		}
	}

	shas := make([]string, 0, len(distinct))
	for sha := range distinct {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	for _, candidateSHA := range shas {
		candidateRepo := distinct[candidateSHA]
		d := vcsdriver.New(candidateRepo.AbsPath)
		isTip := true
		for _, otherSHA := range shas {
			if otherSHA == candidateSHA {
				continue
			}
			ancestor, err := d.IsAncestor(ctx, otherSHA)
			if err != nil || !ancestor {
				isTip = false
				break
			}
		}
		if isTip {
			return candidateSHA, true
		}
	}
	return "", false
}

// resolveRemoteTip pushes any instance ahead of its own upstream, then
// resolves the target from the group's standalone clone if configured, or
// via a refs-listing query against refs/heads/main.
func (e *Engine) resolveRemoteTip(ctx context.Context, instances []Instance, standaloneRepo string) (string, error) {
	for _, inst := range instances {
		d := vcsdriver.New(inst.Repo.AbsPath)
		ahead, _, err := d.AheadBehind(ctx, inst.Repo.Branch)
		if err == nil && ahead != "0" && ahead != "new-branch" {
			if _, err := d.Push(ctx, "origin", inst.Repo.Branch); err != nil {
				return "", err
			}
		}
	}

	if standaloneRepo != "" {
		d := vcsdriver.New(standaloneRepo)
		if _, err := d.Fetch(ctx, ""); err != nil {
			return "", err
		}
		return d.CommitSHA(ctx, false)
	}

	d := vcsdriver.New(instances[0].Repo.AbsPath)
	remoteURL, err := d.RemoteURL(ctx, "origin")
	if err != nil {
		return "", err
	}
	return d.LsRemoteHead(ctx, remoteURL, "main")
}

// Run executes one sync-group pass: discover, resolve target, validate,
// update, commit bottom-up, push.
func (e *Engine) Run(ctx context.Context, group config.SyncGroup, explicitRev string, opts Options) error {
	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}

	instances, drifted, err := e.discoverInstances(ctx, set, group.URLMatch, group.AllowDrift)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return fmt.Errorf("sync group %q matches zero instances", group.Name)
	}
	e.Logger.Log(journal.Discover, fmt.Sprintf("%s: %d instances, %d drift-allowed", group.Name, len(instances), len(drifted)))
	e.debug.Printf("sync %s: remote=%v dry_run=%v no_push=%v", group.Name, opts.Remote, opts.DryRun, opts.NoPush)

	var target string
	var mergeWorkspace string
	switch {
	case explicitRev != "":
		if !LooksLikeRevision(explicitRev) {
			return fmt.Errorf("%q is not a valid revision", explicitRev)
		}
		target = explicitRev
	case opts.Remote:
		target, err = e.resolveRemoteTip(ctx, instances, group.StandaloneRepo)
		if err != nil {
			return err
		}
	default:
		tip, ok := e.resolveLocalTip(ctx, instances)
		if !ok {
			sm := make([]syncmerge.Instance, len(instances))
			for i, inst := range instances {
				sm[i] = syncmerge.Instance{Path: inst.Repo.AbsPath, SHA: inst.Repo.SHA}
			}
			engine, oerr := syncmerge.Open(ctx, e.RepoRoot)
			if oerr != nil {
				return oerr
			}
			res, merr := engine.Attempt(ctx, group.Name, sm, group.StandaloneRepo)
			if merr != nil {
				return merr
			}
			target = res.MergedSHA
			mergeWorkspace = res.WorkspacePath
		} else {
			target = tip
		}
	}

	if opts.DryRun {
		fmt.Printf("[dry-run] would sync %s to %s (workspace=%s)\n", group.Name, target, mergeWorkspace)
		return nil
	}

	if !opts.SkipChecks {
		for _, inst := range instances {
			status, msg := groverepo.Validate(inst.Parent, true, false, false)
			if status == groverepo.StatusBehind || status == groverepo.StatusDiverged {
				return fmt.Errorf("sync blocked: %s", msg)
			}
		}
	}

	updatedParents := map[string]*groverepo.Repo{}
	for _, inst := range instances {
		if inst.Repo.SHA == target {
			continue
		}
		d := vcsdriver.New(inst.Repo.AbsPath)
		if mergeWorkspace != "" {
			if _, err := d.Run(ctx, "fetch", mergeWorkspace, target); err != nil {
				return err
			}
		} else {
			if _, err := d.Fetch(ctx, ""); err != nil {
				return err
			}
		}
		if _, err := d.Checkout(ctx, target); err != nil {
			return err
		}
		updatedParents[inst.Parent.AbsPath] = inst.Parent
		e.Logger.Log(journal.Commit, fmt.Sprintf("%s: updated to %s", inst.Repo.RelPath, target))
	}

	if len(updatedParents) == 0 {
		e.Logger.Log(journal.Skip, fmt.Sprintf("%s: all instances already at %s", group.Name, target))
		return nil
	}

	var parents []*groverepo.Repo
	for _, p := range updatedParents {
		parents = append(parents, p)
	}
	sort.Slice(parents, func(i, j int) bool { return len(parents[i].RelPath) > len(parents[j].RelPath) })

	msg := group.Message(shortOf(target))
	for _, parent := range parents {
		d := vcsdriver.New(parent.AbsPath)
		for _, inst := range instances {
			if inst.Parent.AbsPath == parent.AbsPath {
				if _, err := d.Add(ctx, inst.RelInParent); err != nil {
					return err
				}
			}
		}
		if _, err := d.Commit(ctx, msg); err != nil {
			return err
		}
		e.Logger.Log(journal.Commit, fmt.Sprintf("%s: %s", parent.RelPath, msg))
	}

	if err := e.propagateAncestorCommits(ctx, set, msg, parents, updatedParents); err != nil {
		return err
	}

	if opts.NoPush {
		return nil
	}

	order := groverepo.TopologicalOrder(set)
	for _, r := range order {
		if _, ok := updatedParents[r.AbsPath]; !ok {
			continue
		}
		d := vcsdriver.New(r.AbsPath)
		if _, err := d.Push(ctx, "origin", r.Branch); err != nil {
			return err
		}
	}

	e.Logger.Log(journal.Done, fmt.Sprintf("%s: sync complete at %s", group.Name, target))
	return nil
}

// propagateAncestorCommits walks each just-committed repo's own ancestor
// chain up to the tree root, staging and committing any ancestor whose
// working tree shows the child's submodule pointer as modified — mirroring
// get_parent_repos_for_submodules's full-ancestor walk rather than stopping
// at the direct parent, so an intermediate repo with no direct synced
// instance of its own (e.g. a root two levels above the shared submodule)
// still picks up the pointer bump the level below it just committed.
// committed is extended in place so the push phase covers every repo this
// pass touched, not just the direct parents.
func (e *Engine) propagateAncestorCommits(ctx context.Context, set *groverepo.Set, msg string, frontier []*groverepo.Repo, committed map[string]*groverepo.Repo) error {
	for len(frontier) > 0 {
		var next []*groverepo.Repo
		for _, child := range frontier {
			ancestor := set.Parent(child)
			if ancestor == nil {
				continue
			}
			relInAncestor, err := filepath.Rel(ancestor.AbsPath, child.AbsPath)
			if err != nil {
				continue
			}
			d := vcsdriver.New(ancestor.AbsPath)
			res, err := d.Run(ctx, "diff", "--name-only", "--", relInAncestor)
			if err != nil {
				return err
			}
			if strings.TrimSpace(res.Stdout) == "" {
				continue
			}
			if _, err := d.Add(ctx, relInAncestor); err != nil {
				return err
			}
			if _, err := d.Commit(ctx, msg); err != nil {
				return err
			}
			e.Logger.Log(journal.Commit, fmt.Sprintf("%s: %s", ancestor.RelPath, msg))

			if _, already := committed[ancestor.AbsPath]; !already {
				committed[ancestor.AbsPath] = ancestor
				next = append(next, ancestor)
			}
		}
		frontier = next
	}
	return nil
}

func shortOf(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
