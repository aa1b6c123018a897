package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const templateConfig = `# grove configuration — see the README for the full schema.

[worktree-merge]
test-command = ""

[worktree]
copy-venv = false

[cascade]
local-tests = ""
contract-tests = ""
integration-tests = ""
system-tests = ""

[aliases]
`

// initCmd is a thin external collaborator: the engines read .grove.toml but
// never write it. Kept deliberately minimal — the empty tree still needs a
// bootstrap path to get a starting config file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .grove.toml in the current repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(currentDir(), ".grove.toml")
		if _, err := os.Stat(path); err == nil {
			return usageErrorf(".grove.toml already exists at %s", path)
		}
		return os.WriteFile(path, []byte(templateConfig), 0o644)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
