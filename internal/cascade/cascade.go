// Package cascade implements the bottom-up, tiered propagation of a leaf
// submodule's revision through its chain of parents.
//
// Grounded line-for-line on original_source/cascade.py: RepoCascadeEntry /
// CascadeState, the per-node protocol (_process_repo), the tier ladder
// (_determine_tiers, _TIER_STATUS), the two shapes of auto-diagnosis
// (_auto_diagnose_integration / _auto_diagnose_system), and the
// start/continue/abort/status action set.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"log"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/controldir"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
	"github.com/Cleanroom-Labs/grove/internal/journal"
	"github.com/Cleanroom-Labs/grove/internal/obslog"
	"github.com/Cleanroom-Labs/grove/internal/statestore"
	"github.com/Cleanroom-Labs/grove/internal/testexec"
	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

// ErrChainTooShort is returned when the named leaf has no parent.
var ErrChainTooShort = errors.New("cascade chain must have at least two nodes")

// ErrAlreadyRunning is returned by Start when a cascade state file exists.
var ErrAlreadyRunning = errors.New("a cascade is already in progress; run --continue, --abort, or --status")

// Options configures a cascade start.
type Options struct {
	DryRun      bool
	Mode        SystemMode
	Quick       bool
	SkipChecks  bool
}

// Engine drives the cascade state machine for one repository tree.
type Engine struct {
	RepoRoot string
	Logger   *journal.Journal
	debug    *log.Logger
	store    *statestore.Store[State]
}

// Open resolves control directories and builds an Engine for repoRoot.
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
		Logger:   journal.New(shared, "cascade"),
		debug:    obslog.New(shared, "cascade"),
		store:    statestore.New[State](worktree, "cascade-state.json"),
	}, nil
}

// chain builds [leaf, ..., root] by following parent pointers.
func (e *Engine) chain(set *groverepo.Set, leaf *groverepo.Repo) ([]*groverepo.Repo, error) {
	var nodes []*groverepo.Repo
	cur := leaf
	for cur != nil {
		nodes = append(nodes, cur)
		cur = set.Parent(cur)
	}
	if len(nodes) < 2 {
		return nil, ErrChainTooShort
	}
	return nodes, nil
}

func roleFor(i, n int) Role {
	switch {
	case i == 0:
		return RoleLeaf
	case i == n-1:
		return RoleRoot
	default:
		return RoleIntermediate
	}
}

// Start begins a new cascade from leafRelPath.
func (e *Engine) Start(ctx context.Context, leafRelPath string, opts Options) error {
	if e.store.Exists() {
		return ErrAlreadyRunning
	}

	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}

	var leaf *groverepo.Repo
	for _, r := range set.Repos {
		if r.RelPath == leafRelPath {
			leaf = r
			break
		}
	}
	if leaf == nil {
		return fmt.Errorf("no repo at %q", leafRelPath)
	}

	nodes, err := e.chain(set, leaf)
	if err != nil {
		return err
	}

	st := &State{
		SubmodulePath: leafRelPath,
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
		SystemMode:    opts.Mode,
		Quick:         opts.Quick,
	}
	for i, n := range nodes {
		st.Repos = append(st.Repos, RepoEntry{
			RelPath: n.RelPath,
			Role:    roleFor(i, len(nodes)),
			Status:  StatusPending,
		})
	}

	e.Logger.Log(journal.Start, fmt.Sprintf("cascade %s mode=%s quick=%v", leafRelPath, opts.Mode, opts.Quick))
	e.debug.Printf("chain: %d nodes, dry_run=%v", len(nodes), opts.DryRun)
	return e.run(ctx, set, nodes, st, 0, opts)
}

// Continue resumes the single paused entry and re-executes from there.
func (e *Engine) Continue(ctx context.Context, opts Options) error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}

	idx := st.pausedIndex()
	if idx < 0 {
		return fmt.Errorf("no paused cascade entry")
	}

	entry := &st.Repos[idx]
	if idx2 := statusTierIndex[tierStatus[entry.FailedTier]]; idx2 >= 0 {
		// roll back to the tier before the one that failed
		tiers := DetermineTiers(entry.Role, st.SystemMode, st.Quick)
		failedPos := indexOf(tiers, entry.FailedTier)
		if failedPos <= 0 {
			entry.Status = StatusPending
		} else {
			entry.Status = tierStatus[tiers[failedPos-1]]
		}
	} else {
		entry.Status = StatusPending
	}
	entry.FailedTier = ""
	entry.Diagnosis = nil

	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}
	nodes := make([]*groverepo.Repo, len(st.Repos))
	for i, re := range st.Repos {
		for _, r := range set.Repos {
			if r.RelPath == re.RelPath {
				nodes[i] = r
				break
			}
		}
	}

	e.Logger.Log(journal.Continue, fmt.Sprintf("resuming at %s", entry.RelPath))
	return e.run(ctx, set, nodes, st, idx, opts)
}

func indexOf(tiers []string, tier string) int {
	for i, t := range tiers {
		if t == tier {
			return i
		}
	}
	return -1
}

// Abort walks repos in reverse order, hard-resetting any committed or
// paused node with a recorded pre_cascade_head, never the leaf.
func (e *Engine) Abort(ctx context.Context) error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}

	set, err := groverepo.Discover(ctx, e.RepoRoot, nil)
	if err != nil {
		return err
	}

	for i := len(st.Repos) - 1; i >= 0; i-- {
		entry := st.Repos[i]
		if entry.Role == RoleLeaf {
			continue
		}
		if entry.Status != StatusCommitted && entry.Status != StatusPaused {
			continue
		}
		if entry.PreCascadeHead == "" {
			continue
		}
		repo := findByRelPath(set, entry.RelPath)
		if repo == nil {
			continue
		}
		d := vcsdriver.New(repo.AbsPath)
		if _, err := d.ResetHard(ctx, entry.PreCascadeHead); err != nil {
			return err
		}
	}

	e.Logger.Log(journal.Abort, fmt.Sprintf("aborted cascade for %s", st.SubmodulePath))
	return e.store.Remove()
}

// Status returns the current state document for inspection.
func (e *Engine) Status(ctx context.Context) (*State, error) {
	return e.store.Load()
}

func findByRelPath(set *groverepo.Set, relPath string) *groverepo.Repo {
	for _, r := range set.Repos {
		if r.RelPath == relPath {
			return r
		}
	}
	return nil
}

// run executes the per-node protocol for nodes[startIdx:], persisting state
// after every observable transition.
func (e *Engine) run(ctx context.Context, set *groverepo.Set, nodes []*groverepo.Repo, st *State, startIdx int, opts Options) error {
	cfg, err := config.Load(e.RepoRoot)
	if err != nil {
		return err
	}

	for i := startIdx; i < len(nodes); i++ {
		node := nodes[i]
		entry := &st.Repos[i]
		d := vcsdriver.New(node.AbsPath)

		if entry.PreCascadeHead == "" {
			sha, err := d.CommitSHA(ctx, false)
			if err != nil {
				return err
			}
			entry.PreCascadeHead = sha
			if err := e.store.Save(st); err != nil {
				return err
			}
		}

		if i > 0 {
			child := nodes[i-1]
			childRel, err := filepath.Rel(node.AbsPath, child.AbsPath)
			if err != nil {
				return err
			}
			if opts.DryRun {
				fmt.Printf("[dry-run] would stage %s in %s\n", childRel, node.RelPath)
			} else {
				if _, err := d.Add(ctx, childRel); err != nil {
					return err
				}
			}
		}

		tiers := DetermineTiers(entry.Role, st.SystemMode, st.Quick)
		startTier := statusTierIndex[entry.Status] + 1
		for t := startTier; t < len(tiers); t++ {
			tier := tiers[t]
			cmd, skip := testexec.ResolveCascadeTier(cfg, tier, node.RelPath)
			if skip {
				e.Logger.Log(journal.Skip, fmt.Sprintf("%s: %s has no command configured", node.RelPath, tier))
				entry.Status = tierStatus[tier]
				if err := e.store.Save(st); err != nil {
					return err
				}
				continue
			}

			outcome, err := testexec.Run(ctx, node.AbsPath, cmd)
			if err != nil {
				return err
			}
			if outcome.Passed {
				e.Logger.Log(journal.Pass, fmt.Sprintf("%s: %s passed", node.RelPath, tier))
				entry.Status = tierStatus[tier]
				if err := e.store.Save(st); err != nil {
					return err
				}
				continue
			}

			e.Logger.Log(journal.Fail, fmt.Sprintf("%s: %s failed", node.RelPath, tier))
			entry.Status = StatusPaused
			entry.FailedTier = tier
			if err := e.store.Save(st); err != nil {
				return err
			}

			e.diagnose(ctx, cfg, nodes, st, i)
			if err := e.store.Save(st); err != nil {
				return err
			}
			e.Logger.Log(journal.Paused, fmt.Sprintf("%s: paused at %s", node.RelPath, tier))
			return fmt.Errorf("cascade paused: %s failed at %s", node.RelPath, tier)
		}

		if opts.DryRun {
			continue
		}

		staged, err := d.HasUncommittedChanges(ctx)
		if err != nil {
			return err
		}
		if staged && i > 0 {
			child := nodes[i-1]
			msg := fmt.Sprintf("chore(cascade): update %s submodule to %s", child.RelPath, child.ShortSHA)
			if _, err := d.Commit(ctx, msg); err != nil {
				return err
			}
			e.Logger.Log(journal.Commit, msg)
		} else {
			e.Logger.Log(journal.Skip, fmt.Sprintf("%s: nothing to commit", node.RelPath))
		}
		entry.Status = StatusCommitted
		if err := e.store.Save(st); err != nil {
			return err
		}
	}

	e.Logger.Log(journal.Done, fmt.Sprintf("cascade %s complete", st.SubmodulePath))
	return e.store.Remove()
}

// diagnose runs the auto-diagnosis protocol for a failure at nodes[parentIdx]
// whose child is nodes[parentIdx-1], appending to the entry's Diagnosis.
// Integration failures are single-phase (child's local tests only); system
// failures are two-phase (local tests, then integration tests if those
// passed), per the cascade's auto-diagnosis contract.
func (e *Engine) diagnose(ctx context.Context, cfg *config.GroveConfig, nodes []*groverepo.Repo, st *State, parentIdx int) {
	if parentIdx == 0 {
		return
	}
	entry := &st.Repos[parentIdx]
	if entry.FailedTier != "integration-tests" && entry.FailedTier != "system-tests" {
		return
	}
	child := nodes[parentIdx-1]

	runTier := func(tier string) bool {
		cmd, skip := testexec.ResolveCascadeTier(cfg, tier, child.RelPath)
		passed := skip
		if !skip {
			out, err := testexec.Run(ctx, child.AbsPath, cmd)
			if err == nil {
				passed = out.Passed
			}
		}
		entry.Diagnosis = append(entry.Diagnosis, DiagEntry{RelPath: child.RelPath, Tier: tier, Passed: passed})
		e.Logger.Log(journal.Diag, fmt.Sprintf("%s: %s passed=%v", child.RelPath, tier, passed))
		return passed
	}

	switch entry.FailedTier {
	case "integration-tests":
		runTier("local-tests")
	case "system-tests":
		if runTier("local-tests") {
			runTier("integration-tests")
		}
	}
}
