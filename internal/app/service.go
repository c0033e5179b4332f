// Package app wires the dispatch core's generic building blocks
// (aiclient, dispatch, reduce, prompts) into the three public
// operations the CLI surface calls: generating amendments, checking
// commits, and drafting PR content.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gitsage/gitsage/internal/pkg/aiclient"
	"github.com/gitsage/gitsage/internal/pkg/cache"
	"github.com/gitsage/gitsage/internal/pkg/config"
	"github.com/gitsage/gitsage/internal/pkg/dispatch"
	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/gitsage/gitsage/internal/pkg/prompts"
	"github.com/gitsage/gitsage/internal/pkg/reduce"
	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

// DispatchService ties an AiClient plug-in to the Request Orchestrator
// for each of the three public operations, applying the configured
// cross-commit coherence pass (spec §4.6) after the map phase.
type DispatchService struct {
	client aiclient.AiClient
	cfg    config.DispatchConfig
}

// NewDispatchService creates a DispatchService. cfg defaults to
// config.DefaultDispatchConfig() when zero-valued fields would produce
// a non-functional orchestrator. When cfg.Cache.Enabled, client is
// wrapped in a process-lifetime de-duplicating cache (spec §13).
func NewDispatchService(client aiclient.AiClient, cfg config.Config) *DispatchService {
	dispatchCfg := cfg.Dispatch
	if dispatchCfg.Concurrency <= 0 {
		dispatchCfg.Concurrency = config.DefaultDispatchConfig().Concurrency
	}

	client = aiclient.NewCircuitBreakerClient(client, apperrors.DefaultCircuitBreakerConfig())

	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		if ttl <= 0 {
			ttl = cache.DefaultTTL
		}
		maxEntries := cfg.Cache.MaxEntries
		if maxEntries <= 0 {
			maxEntries = cache.DefaultMaxEntries
		}
		client = aiclient.NewCachingClient(client, cache.NewLRUCache(maxEntries, ttl))
	}

	return &DispatchService{client: client, cfg: dispatchCfg}
}

func (s *DispatchService) options(verb string, retryPrompt dispatch.RetryPromptFunc) dispatch.Options {
	return dispatch.Options{
		Concurrency: s.cfg.Concurrency,
		MaxRetries:  s.cfg.MaxRetries,
		NoCoherence: s.cfg.NoCoherence,
		Interactive: s.cfg.Interactive,
		Verb:        verb,
		RetryPrompt: retryPrompt,
	}
}

// GenerateAmendments runs the "generate amendments" operation over
// view and returns the resulting AmendmentFile plus any non-fatal
// warning (partial failures, a skipped coherence pass).
func (s *DispatchService) GenerateAmendments(ctx context.Context, view domain.RepositoryView, guidelines string, retryPrompt dispatch.RetryPromptFunc) (wireformat.AmendmentFile, string, error) {
	engine := &dispatch.Engine[wireformat.Amendment]{
		Client:  s.client,
		Opts:    s.options("processed", retryPrompt),
		Prompts: prompts.AmendmentPrompts(guidelines),
	}

	result, err := engine.Run(ctx, view)
	if err != nil {
		return wireformat.AmendmentFile{}, "", err
	}

	warning := result.Warning
	if !s.cfg.NoCoherence && !result.UsedSingleCall && len(result.Items) > 1 {
		if merged, coherenceErr := s.coherePassAmendments(ctx, result.Items); coherenceErr != nil {
			logging.L().Warn().Err(coherenceErr).Msg("coherence pass failed, returning pre-coherence amendments")
			warning = appendWarning(warning, "coherence pass failed: "+coherenceErr.Error())
		} else {
			result.Items = merged
		}
	}

	return wireformat.AmendmentFile{Amendments: result.Items}, warning, nil
}

// CheckCommits runs the "check commits" operation over view.
func (s *DispatchService) CheckCommits(ctx context.Context, view domain.RepositoryView, guidelines string, retryPrompt dispatch.RetryPromptFunc) (wireformat.CheckReport, string, error) {
	engine := &dispatch.Engine[wireformat.CommitCheckResult]{
		Client:  s.client,
		Opts:    s.options("checked", retryPrompt),
		Prompts: prompts.CheckPrompts(guidelines),
	}

	result, err := engine.Run(ctx, view)
	if err != nil {
		return wireformat.CheckReport{}, "", err
	}

	warning := result.Warning
	if !s.cfg.NoCoherence && !result.UsedSingleCall && len(result.Items) > 1 {
		if merged, coherenceErr := s.coherePassChecks(ctx, result.Items); coherenceErr != nil {
			logging.L().Warn().Err(coherenceErr).Msg("coherence pass failed, returning pre-coherence checks")
			warning = appendWarning(warning, "coherence pass failed: "+coherenceErr.Error())
		} else {
			result.Items = merged
		}
	}

	return wireformat.CheckReport{Checks: result.Items}, warning, nil
}

// GeneratePRContent runs the "generate PR content" operation: each
// commit produces a contribution fragment, then a final synthesis call
// collapses every fragment into one PrContent (spec §4.6's note that
// PR content always requires the secondary merge pass, applied here at
// the whole-PR level since PrContent has no per-commit identity).
func (s *DispatchService) GeneratePRContent(ctx context.Context, view domain.RepositoryView, retryPrompt dispatch.RetryPromptFunc) (wireformat.PrContent, string, error) {
	engine := &dispatch.Engine[wireformat.PrContent]{
		Client:  s.client,
		Opts:    s.options("processed", retryPrompt),
		Prompts: prompts.PRPrompts(),
	}

	result, err := engine.Run(ctx, view)
	if err != nil {
		return wireformat.PrContent{}, "", err
	}

	if len(result.Items) == 1 && result.Items[0].Title != "" {
		// Full-view attempt already produced the final title+description.
		return result.Items[0], result.Warning, nil
	}

	system, user := prompts.PRSynthesisPrompt(view.PrTemplate, result.Items)
	raw, err := s.client.SendRequest(ctx, system, user)
	if err != nil {
		return wireformat.PrContent{}, result.Warning, fmt.Errorf("PR synthesis call failed: %w", err)
	}
	content, err := wireformat.ParsePrContent(raw)
	if err != nil {
		return wireformat.PrContent{}, result.Warning, fmt.Errorf("PR synthesis response invalid: %w", err)
	}

	return content, result.Warning, nil
}

// coherePassAmendments sends every amendment's commit+message as short
// summaries and asks the model to normalize them; on any failure the
// caller falls back to the pre-coherence items (non-fatal per spec §4.6).
func (s *DispatchService) coherePassAmendments(ctx context.Context, items []wireformat.Amendment) ([]wireformat.Amendment, error) {
	inputs := make([]reduce.CoherenceInput, len(items))
	for i, a := range items {
		inputs[i] = reduce.CoherenceInput{CommitHash: a.Commit, Summary: a.Summary}
	}
	system := "You normalize a set of independently-generated commit messages for cross-commit consistency: scope boundaries, terminology, and tense. Respond with the same amendments YAML for all commits."
	user := reduce.BuildCoherencePrompt(inputs)

	raw, err := s.client.SendRequest(ctx, system, user)
	if err != nil {
		return nil, err
	}
	file, err := wireformat.ParseAmendments(raw)
	if err != nil {
		return nil, err
	}
	return file.Amendments, nil
}

// coherePassChecks mirrors coherePassAmendments for check results.
func (s *DispatchService) coherePassChecks(ctx context.Context, items []wireformat.CommitCheckResult) ([]wireformat.CommitCheckResult, error) {
	inputs := make([]reduce.CoherenceInput, len(items))
	for i, c := range items {
		inputs[i] = reduce.CoherenceInput{CommitHash: c.Commit, Summary: c.Summary}
	}
	system := "You normalize a set of independently-generated commit check results for cross-commit consistency: scope boundaries, terminology, and severity judgments. Respond with the same checks YAML for all commits."
	user := reduce.BuildCoherencePrompt(inputs)

	raw, err := s.client.SendRequest(ctx, system, user)
	if err != nil {
		return nil, err
	}
	report, err := wireformat.ParseCheckReport(raw)
	if err != nil {
		return nil, err
	}
	return report.Checks, nil
}

func appendWarning(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "; " + addition
}
