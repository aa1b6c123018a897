package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/check"
	"github.com/Cleanroom-Labs/grove/internal/groverepo"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every repo is on a named ref and every sync group is consistent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		root := currentDir()
		cfg := loadConfigOrExit(root)

		set, err := groverepo.Discover(ctx, root, nil)
		if err != nil {
			return err
		}

		refFindings := check.CheckRefs(ctx, set)
		groupFindings, err := check.CheckSyncGroups(ctx, set, cfg.SyncGroups)
		if err != nil {
			return err
		}

		check.Report(refFindings, groupFindings)

		for _, g := range groupFindings {
			if len(g.Differing) > 0 {
				return fmt.Errorf("sync groups are inconsistent")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
