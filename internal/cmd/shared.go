package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitsage/gitsage/internal/app"
	"github.com/gitsage/gitsage/internal/pkg/aiclient"
	"github.com/gitsage/gitsage/internal/pkg/config"
	"github.com/gitsage/gitsage/internal/pkg/dispatch"
	"github.com/gitsage/gitsage/internal/pkg/domain"
	"github.com/gitsage/gitsage/internal/pkg/repoview"
	"github.com/gitsage/gitsage/internal/pkg/security"
	"github.com/gitsage/gitsage/internal/pkg/ui"
)

// loadConfig reads the --config flag and loads the ViperManager-backed
// configuration, applying --provider/--model overrides from the
// command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	mgr, err := config.NewManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Provider.Name = provider
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Provider.Model = model
	}
	if noCoherence, _ := cmd.Flags().GetBool("no-coherence"); noCoherence {
		cfg.Dispatch.NoCoherence = true
	}
	if nonInteractive, _ := cmd.Flags().GetBool("non-interactive"); nonInteractive {
		cfg.Dispatch.Interactive = false
	}

	if err := security.ValidateAPIKeyFormat(cfg.Provider.Name, cfg.Provider.APIKey); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDispatchService constructs the AiClient plug-in named by cfg and
// wraps it in a DispatchService.
func newDispatchService(cfg *config.Config) (*app.DispatchService, error) {
	client, err := aiclient.New(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	return app.NewDispatchService(client, *cfg), nil
}

// buildRepositoryView shells out to git for the --range commit range
// and returns the assembled view plus its cleanup func.
func buildRepositoryView(cmd *cobra.Command, prTemplate string) (domain.RepositoryView, func(), error) {
	revRange, _ := cmd.Flags().GetString("range")

	branch, err := repoview.CurrentBranch(cmd.Context(), "")
	if err != nil {
		branch = ""
	}

	builder := repoview.NewBuilder("")
	return builder.Build(cmd.Context(), revRange, branch, prTemplate)
}

// retryPromptFunc wires the orchestrator's interactive [R]etry/[S]kip
// callback to the bubbletea prompt, unless --non-interactive disabled
// the loop entirely.
func retryPromptFunc(cfg *config.Config) dispatch.RetryPromptFunc {
	if !cfg.Dispatch.Interactive {
		return nil
	}
	return func(failedCount int) bool {
		choice, err := ui.PromptRetry(failedCount)
		if err != nil {
			return false
		}
		return choice == ui.RetryChoiceRetry
	}
}
