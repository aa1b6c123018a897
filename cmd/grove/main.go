package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		rootCmd.SetArgs(expandAliases(os.Args[1:]))
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the process exit code named in the external
// interface: 0 success, 1 runtime/validation error, 2 usage error.
func exitCodeFor(err error) int {
	if usageErr, ok := err.(*UsageError); ok {
		_ = usageErr
		return 2
	}
	return 1
}
