package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/config"
	syncengine "github.com/Cleanroom-Labs/grove/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync [group] [sha]",
	Short: "Align every physical instance of a shared submodule to one revision",
	Long: `sync finds every instance of a named shared-submodule group, resolves a
target revision (explicit SHA, local tip, or remote), updates each
instance, and commits the pointer bump bottom-up. If group is omitted,
every configured group is synced; if group does not name a known group
but looks like a 7-40 character hex SHA, it is treated as a revision
applied to all groups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		root := currentDir()
		cfg := loadConfigOrExit(root)

		remote, _ := cmd.Flags().GetBool("remote")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noPush, _ := cmd.Flags().GetBool("no-push")
		skipChecks, _ := cmd.Flags().GetBool("skip-checks")

		opts := syncengine.Options{Remote: remote, DryRun: dryRun, NoPush: noPush, SkipChecks: skipChecks}

		var groupName, rev string
		switch len(args) {
		case 0:
		case 1:
			if _, ok := cfg.SyncGroups[args[0]]; ok {
				groupName = args[0]
			} else if syncengine.LooksLikeRevision(args[0]) {
				rev = args[0]
			} else {
				return usageErrorf("unknown sync group %q", args[0])
			}
		case 2:
			groupName, rev = args[0], args[1]
			if _, ok := cfg.SyncGroups[groupName]; !ok {
				return usageErrorf("unknown sync group %q", groupName)
			}
		default:
			return usageErrorf("sync accepts at most a group and a revision")
		}

		engine, err := syncengine.Open(ctx, root)
		if err != nil {
			return err
		}

		targets := cfg.SyncGroups
		if groupName != "" {
			targets = map[string]config.SyncGroup{groupName: cfg.SyncGroups[groupName]}
		}
		for _, g := range targets {
			if err := engine.Run(ctx, g, rev, opts); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("remote", false, "resolve the target revision from the remote instead of the local tip")
	syncCmd.Flags().Bool("dry-run", false, "report the intended target without updating or committing")
	syncCmd.Flags().Bool("no-push", false, "commit pointer updates but do not push")
	syncCmd.Flags().Bool("skip-checks", false, "skip the parent-repo validation gate")
	syncCmd.Flags().Bool("continue", false, "resume a paused sync-merge")
	syncCmd.Flags().Bool("abort", false, "unwind an in-progress sync-merge")
	syncCmd.Flags().Bool("status", false, "print the current sync-merge state")
	rootCmd.AddCommand(syncCmd)
}
