// Package controldir resolves the two control-directory locations every
// engine depends on: the shared directory (journal, topology cache — one
// per repository, survives across worktrees) and the private per-worktree
// directory (state documents — one per checkout).
//
// Grounded on original_source/repo_utils.py's get_git_common_dir and
// get_git_worktree_dir, which draw the identical shared/private distinction
// from `git rev-parse --git-common-dir` vs `--absolute-git-dir`.
package controldir

import (
	"context"
	"path/filepath"

	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

const subdir = "grove"

// Shared returns the control directory that lives alongside the repository
// store and is visible from every worktree.
func Shared(ctx context.Context, repoPath string) (string, error) {
	d := vcsdriver.New(repoPath)
	commonDir, err := d.GitCommonDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(commonDir, subdir), nil
}

// Worktree returns the control directory private to this checkout.
func Worktree(ctx context.Context, repoPath string) (string, error) {
	d := vcsdriver.New(repoPath)
	gitDir, err := d.GitWorktreeDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, subdir), nil
}
