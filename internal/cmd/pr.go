package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

// NewPRCmd creates the "pr" command: draft a PR title and description
// for a commit range.
func NewPRCmd() *cobra.Command {
	var templateFile string
	var outputFile string

	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Draft a Pull Request title and description for a commit range",
		Long: `Dispatches every commit in --range to the configured AI provider,
synthesizes their contributions into one narrative, and prints a YAML
document with the resulting PR title and description.

Examples:
  gitsage pr --range main..HEAD
  gitsage pr --template .github/PULL_REQUEST_TEMPLATE.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := newDispatchService(cfg)
			if err != nil {
				return err
			}

			prTemplate := ""
			if templateFile != "" {
				content, err := os.ReadFile(templateFile)
				if err != nil {
					return fmt.Errorf("failed to read PR template: %w", err)
				}
				prTemplate = string(content)
			}

			view, cleanup, err := buildRepositoryView(cmd, prTemplate)
			if err != nil {
				return fmt.Errorf("failed to build repository view: %w", err)
			}
			defer cleanup()

			content, warning, err := svc.GeneratePRContent(cmd.Context(), view, retryPromptFunc(cfg))
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}

			out, err := wireformat.MarshalPrContent(content)
			if err != nil {
				return fmt.Errorf("failed to render PR content: %w", err)
			}

			if outputFile != "" {
				return os.WriteFile(outputFile, out, 0o644)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&templateFile, "template", "", "Path to a PR template file whose section headings should be preserved")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the PR content YAML to a file instead of stdout")

	return cmd
}
