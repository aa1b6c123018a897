// Package testexec resolves and runs the per-repo test command used by the
// cascade and worktree-merge engines.
//
// Grounded on the duplicated _run_test / _get_test_command helpers in
// original_source/cascade.py and worktree_merge.py, consolidated here into
// two resolvers, ResolveWorktreeMerge and ResolveCascadeTier, each returning
// a command string or a skip, plus one runner shared by both engines.
package testexec

import (
	"context"
	"os/exec"
	"time"

	"github.com/Cleanroom-Labs/grove/internal/config"
)

// ResolveWorktreeMerge applies the four-level order: root per-repo override,
// repo's own .grove.toml test-command, root default, none. repoAbsPath is
// the repo's working copy, used to load its own config; pass "" (or the
// tree root itself) to skip the per-repo level, matching _get_test_command's
// "repo.path != repo.repo_root" guard.
//
// Grounded on worktree_merge.py's _get_test_command.
func ResolveWorktreeMerge(cfg *config.GroveConfig, relPath, repoAbsPath string) (cmd string, skip bool) {
	if override, ok := cfg.WorktreeMerge.TestOverrides[relPath]; ok {
		return override, override == ""
	}
	if repoAbsPath != "" {
		local, err := config.Load(repoAbsPath)
		if err == nil && local.WorktreeMerge.TestCommand != "" {
			return local.WorktreeMerge.TestCommand, false
		}
	}
	if cfg.WorktreeMerge.TestCommand != "" {
		return cfg.WorktreeMerge.TestCommand, false
	}
	return "", true
}

// ResolveCascadeTier applies the cascade variant: the per-repo override's
// sub-key is the tier name, and local-tests additionally inherits the
// worktree-merge default when nothing cascade-specific is configured.
func ResolveCascadeTier(cfg *config.GroveConfig, tier, relPath string) (cmd string, skip bool) {
	wtDefault := cfg.WorktreeMerge.TestCommand
	got, ok := cfg.Cascade.GetCommand(tier, relPath, wtDefault)
	if !ok {
		return "", true
	}
	return got, got == ""
}

// Outcome is the result of running a resolved command.
type Outcome struct {
	Skipped  bool
	Passed   bool
	Duration time.Duration
}

// Run executes cmd as a shell command in dir and reports (passed, duration).
// An empty cmd is a skip, never a failure.
func Run(ctx context.Context, dir, cmd string) (Outcome, error) {
	if cmd == "" {
		return Outcome{Skipped: true}, nil
	}

	start := time.Now()
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	err := c.Run()
	dur := time.Since(start)

	if err == nil {
		return Outcome{Passed: true, Duration: dur}, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return Outcome{Passed: false, Duration: dur}, nil
	}
	return Outcome{Passed: false, Duration: dur}, err
}
