package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/push"
)

var pushCmd = &cobra.Command{
	Use:   "push [paths...]",
	Short: "Push every repo with unpushed commits, bottom-up",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		root := currentDir()
		cfg := loadConfigOrExit(root)

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipChecks, _ := cmd.Flags().GetBool("skip-checks")
		syncGroup, _ := cmd.Flags().GetString("sync-group")
		cascadePath, _ := cmd.Flags().GetString("cascade")

		return push.Run(ctx, root, cfg, push.Options{
			DryRun:     dryRun,
			SkipChecks: skipChecks,
			SyncGroup:  syncGroup,
			Cascade:    cascadePath,
			Paths:      args,
		})
	},
}

func init() {
	pushCmd.Flags().Bool("dry-run", false, "report intended pushes without pushing")
	pushCmd.Flags().Bool("skip-checks", false, "skip the sync-group consistency gate")
	pushCmd.Flags().String("sync-group", "", "restrict to repos belonging to this sync group")
	pushCmd.Flags().String("cascade", "", "restrict to repos on this cascade chain")
	rootCmd.AddCommand(pushCmd)
}
