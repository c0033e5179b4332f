package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsage/gitsage/internal/pkg/message"
	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

// NewAmendCmd creates the "amend" command: generate replacement commit
// messages for a commit range.
func NewAmendCmd() *cobra.Command {
	var guidelines string
	var outputFile string

	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Generate commit message amendments for a commit range",
		Long: `Dispatches every commit in --range to the configured AI provider and
prints a YAML document of proposed replacement messages, one per
commit.

Examples:
  gitsage amend --range HEAD~5..HEAD
  gitsage amend --range main..HEAD -o amendments.yaml`,
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

			file, warning, err := svc.GenerateAmendments(cmd.Context(), view, guidelines, retryPromptFunc(cfg))
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}
			warnNonConventional(file)

			out, err := wireformat.MarshalAmendments(file)
			if err != nil {
				return fmt.Errorf("failed to render amendments: %w", err)
			}

			if outputFile != "" {
				return os.WriteFile(outputFile, out, 0o644)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&guidelines, "guidelines", "", "Project-specific commit message guidelines to include in the prompt")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the amendments YAML to a file instead of stdout")

	return cmd
}

// warnNonConventional flags any generated message that doesn't parse as
// Conventional Commits, even though the system prompt asks for it — a
// local, deterministic safety net the model's output isn't guaranteed
// to satisfy.
func warnNonConventional(file wireformat.AmendmentFile) {
	for _, a := range file.Amendments {
		result := message.NewCommitMessage(a.Message).ValidateWithWarnings()
		if !result.IsValid {
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "warning: commit %s: %s\n", a.Commit, e.Error())
			}
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: commit %s: %s\n", a.Commit, w)
		}
	}
}
