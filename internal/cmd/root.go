// Package cmd contains the CLI command definitions for the gitsage
// dispatch core. The CLI is intentionally thin: flag parsing, config
// load, RepositoryView construction via internal/pkg/repoview, and
// output formatting — the orchestration lives in internal/app and
// internal/pkg/dispatch (spec §10.4).
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitsage/gitsage/internal/pkg/logging"
)

// NewRootCmd creates the root command for the gitsage CLI.
func NewRootCmd(version, commitHash, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gitsage",
		Short: "AI-powered commit message and PR content dispatch core",
		Long: `gitsage packs commit diffs into token-budgeted requests, dispatches
them to a configurable AI provider under bounded concurrency, and
reduces the partial results back into commit message amendments,
per-commit check reports, or a single Pull Request title/description.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logging.SetVerbose(verbose)
			return nil
		},
	}

	rootCmd.SetVersionTemplate(`gitsage {{.Version}}
Commit: ` + commitHash + `
Built:  ` + date + "\n")

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: ~/.gitsage/config.yaml)")
	rootCmd.PersistentFlags().String("provider", "", "AI provider to use (openai, ollama, bedrock)")
	rootCmd.PersistentFlags().String("model", "", "AI model to use")
	rootCmd.PersistentFlags().String("range", "HEAD~1..HEAD", "Commit range to operate on, as accepted by git log")
	rootCmd.PersistentFlags().Bool("no-coherence", false, "Disable the cross-commit coherence pass")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "Never prompt on remaining failures; skip them instead")

	rootCmd.AddCommand(NewAmendCmd())
	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewPRCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}
