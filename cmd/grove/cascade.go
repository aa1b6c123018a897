package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Cleanroom-Labs/grove/internal/cascade"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade [path]",
	Short: "Propagate a leaf submodule's revision upward through its parent chain",
	Long: `Starting from a named leaf repository, cascade runs a progressive ladder
of test tiers at each parent and commits the submodule-pointer bump once
the configured tiers pass, pausing for inspection on the first failure.

Example usage:
  grove cascade libs/common
  grove cascade --continue
  grove cascade --abort
  grove cascade --status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cont, _ := cmd.Flags().GetBool("continue")
		abort, _ := cmd.Flags().GetBool("abort")
		status, _ := cmd.Flags().GetBool("status")
		systemAll, _ := cmd.Flags().GetBool("system")
		noSystem, _ := cmd.Flags().GetBool("no-system")
		quick, _ := cmd.Flags().GetBool("quick")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if countTrue(systemAll, noSystem, quick) > 1 {
			return usageErrorf("--system, --no-system, and --quick are mutually exclusive")
		}

		engine, err := cascade.Open(ctx, currentDir())
		if err != nil {
			return err
		}

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
			return engine.Continue(ctx, cascadeOptions(dryRun, systemAll, noSystem, quick))
		default:
			if len(args) != 1 {
				return usageErrorf("cascade requires exactly one leaf repo path")
			}
			return engine.Start(ctx, args[0], cascadeOptions(dryRun, systemAll, noSystem, quick))
		}
	},
}

func cascadeOptions(dryRun, systemAll, noSystem, quick bool) cascade.Options {
	mode := cascade.ModeDefault
	switch {
	case systemAll:
		mode = cascade.ModeAll
	case noSystem:
		mode = cascade.ModeNone
	}
	return cascade.Options{DryRun: dryRun, Mode: mode, Quick: quick}
}

func countTrue(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	cascadeCmd.Flags().Bool("dry-run", false, "report intended actions without committing")
	cascadeCmd.Flags().Bool("system", false, "run all tiers including system-tests at every level")
	cascadeCmd.Flags().Bool("no-system", false, "never run system-tests")
	cascadeCmd.Flags().Bool("quick", false, "run only local-tests and contract-tests")
	cascadeCmd.Flags().Bool("skip-checks", false, "no effect: cascade runs no pre-flight validation")
	cascadeCmd.Flags().Bool("continue", false, "resume a paused cascade")
	cascadeCmd.Flags().Bool("abort", false, "unwind an in-progress cascade")
	cascadeCmd.Flags().Bool("status", false, "print the current cascade state")
	rootCmd.AddCommand(cascadeCmd)
}
