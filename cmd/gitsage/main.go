// Package main is the entry point for the gitsage CLI application:
// a dispatch core that packs commit diffs into token-budgeted
// requests and generates commit message amendments, check reports, or
// Pull Request content from a configurable AI provider.
package main

import (
	"fmt"
	"os"

	"github.com/gitsage/gitsage/internal/cmd"
)

// Version information - set via ldflags during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := cmd.NewRootCmd(version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
