package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

// worktreeAddCmd and worktreeRemoveCmd are thin external collaborators: the
// core coordination engines consume an already-prepared worktree and never
// manage its lifecycle themselves, so these simply pass through to git.
var worktreeAddCmd = &cobra.Command{
	Use:   "add <path> <branch>",
	Short: "Add a git worktree at path checked out to branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return usageErrorf("worktree add requires a path and a branch")
		}
		d := vcsdriver.New(currentDir())
		res, err := d.Run(context.Background(), "worktree", "add", args[0], args[1])
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("git worktree add failed: %s", res.Stderr)
		}
		return nil
	},
}

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Remove a git worktree",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageErrorf("worktree remove requires a path")
		}
		d := vcsdriver.New(currentDir())
		res, err := d.Run(context.Background(), "worktree", "remove", args[0])
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("git worktree remove failed: %s", res.Stderr)
		}
		return nil
	},
}
