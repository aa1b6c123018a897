package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/worktreemerge"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Worktree-level operations: merge a branch across the tree, or add/remove a worktree",
}

var worktreeMergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Merge a named branch into every repo in the tree, leaves first",
	Long: `worktree merge topologically sorts every repo in the tree and merges the
named branch into each, leaves first. Submodule-pointer conflicts for
children already merged in this run are auto-resolved; any other
conflict, or a failing test, pauses the merge for inspection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if len(args) != 1 {
			return usageErrorf("worktree merge requires exactly one branch name")
		}

		cont, _ := cmd.Flags().GetBool("continue")
		abort, _ := cmd.Flags().GetBool("abort")
		status, _ := cmd.Flags().GetBool("status")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noRecurse, _ := cmd.Flags().GetBool("no-recurse")
		noFF, _ := cmd.Flags().GetBool("no-ff")
		noTest, _ := cmd.Flags().GetBool("no-test")

		engine, err := worktreemerge.Open(ctx, currentDir())
		if err != nil {
			return err
		}
		opts := worktreemerge.Options{DryRun: dryRun, NoRecurse: noRecurse, NoFF: noFF, NoTest: noTest}

		switch {
		case status:
			st, err := engine.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(st)
		case abort:
			return engine.Abort(ctx)
		case cont:
			return engine.Continue(ctx, opts)
		default:
			return engine.Start(ctx, args[0], opts)
		}
	},
}

func init() {
	worktreeMergeCmd.Flags().Bool("continue", false, "resume a paused merge")
	worktreeMergeCmd.Flags().Bool("abort", false, "unwind an in-progress merge")
	worktreeMergeCmd.Flags().Bool("status", false, "print the current merge state")
	worktreeMergeCmd.Flags().Bool("dry-run", false, "stop after conflict prediction")
	worktreeMergeCmd.Flags().Bool("no-recurse", false, "do not descend into nested submodules")
	worktreeMergeCmd.Flags().Bool("no-ff", false, "force a merge commit even on fast-forwards")
	worktreeMergeCmd.Flags().Bool("no-test", false, "skip running each repo's test command")

	worktreeCmd.AddCommand(worktreeMergeCmd)
	worktreeCmd.AddCommand(worktreeAddCmd)
	worktreeCmd.AddCommand(worktreeRemoveCmd)
	rootCmd.AddCommand(worktreeCmd)
}
