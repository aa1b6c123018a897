package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Cleanroom-Labs/grove/internal/config"
	"github.com/Cleanroom-Labs/grove/internal/statusfmt"
)

// UsageError marks an error that should exit 2 rather than 1: missing
// required arguments, mutually exclusive flags present together, an unknown
// sync-group name, an invalid revision format, or a target path that is not
// a known repository.
type UsageError struct{ msg string }

func (e *UsageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Coordinate cascades, syncs, and branch merges across a tree of nested git submodules",
	Long: `grove operates on a repository that forms a tree of nested submodules
with shared leaf libraries. It drives four bottom-up, resumable
coordination engines over the git CLI:

  cascade         propagate a leaf change upward through its parent chain
  sync            align every physical instance of a shared submodule
  worktree merge  merge a branch across every repo in the tree
  check           verify refs and sync-group consistency

Every engine persists its state after each observable step, so an
interrupted run always resumes with --continue or unwinds with --abort.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.BindEnv("no_color", "NO_COLOR", "GROVE_NO_COLOR")
		viper.BindPFlag("no_color", cmd.Flags().Lookup("no-color"))
		statusfmt.Enabled = !viper.GetBool("no_color")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable terminal styling")
}

// expandAliases rewrites args[0] per the repo's configured [aliases] table,
// applied once in main() before cobra ever sees the argument list —
// mirroring the original CLI's "expanded at the first command token before
// parsing" behaviour.
func expandAliases(args []string) []string {
	if len(args) == 0 {
		return args
	}
	cfg, err := config.Load(currentDir())
	if err != nil || cfg.Aliases == nil {
		return args
	}
	expansion, ok := cfg.Aliases[args[0]]
	if !ok {
		return args
	}
	parts := strings.Fields(expansion)
	return append(parts, args[1:]...)
}

func loadConfigOrExit(repoRoot string) *config.GroveConfig {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
	return cfg
}

func currentDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
