package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

// NewCheckCmd creates the "check" command: validate a commit range
// against project conventions without rewriting anything.
func NewCheckCmd() *cobra.Command {
	var guidelines string
	var failOnIssue bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a commit range against project conventions",
		Long: `Dispatches every commit in --range to the configured AI provider and
prints a YAML check report: pass/fail plus any issues found per
commit.

Examples:
  gitsage check --range HEAD~5..HEAD
  gitsage check --fail-on-issue   # non-zero exit if any commit fails`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := newDispatchService(cfg)
			if err != nil {
				return err
			}

			view, cleanup, err := buildRepositoryView(cmd, "")
			if err != nil {
				return fmt.Errorf("failed to build repository view: %w", err)
			}
			defer cleanup()

			report, warning, err := svc.CheckCommits(cmd.Context(), view, guidelines, retryPromptFunc(cfg))
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}

			out, err := wireformat.MarshalCheckReport(report)
			if err != nil {
				return fmt.Errorf("failed to render check report: %w", err)
			}
			if _, err := os.Stdout.Write(out); err != nil {
				return err
			}

			if failOnIssue {
				for _, c := range report.Checks {
					if !c.Passes {
						return fmt.Errorf("one or more commits failed checks")
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&guidelines, "guidelines", "", "Project-specific conventions to check against")
	cmd.Flags().BoolVar(&failOnIssue, "fail-on-issue", false, "Exit non-zero if any commit fails its check")

	return cmd
}
