package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/vcsdriver"
)

// checkoutCmd is a thin external collaborator: a plain pass-through to git
// checkout in the current repo, named only because the core's worktree-merge
// engine assumes a branch is already checked out before it starts.
var checkoutCmd = &cobra.Command{
	Use:   "checkout <ref>",
	Short: "Checkout a ref in the current repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageErrorf("checkout requires exactly one ref")
		}
		d := vcsdriver.New(currentDir())
		res, err := d.Checkout(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("checkout failed: %s", res.Stderr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}
