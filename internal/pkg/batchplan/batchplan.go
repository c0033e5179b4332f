// Package batchplan groups whole commits into token-budgeted batches
// for the Request Orchestrator's map phase, and computes the
// per-commit overhead constants the orchestrator reuses when sizing
// file-chunk sub-dispatch.
package batchplan

import (
	"github.com/gitsage/gitsage/internal/pkg/domain"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/gitsage/gitsage/internal/pkg/tokenbudget"
)

// Overhead constants capturing the fixed per-request cost the prompt
// template and view envelope add beyond the variable content. Mirrors
// the overhead constants the file-chunk sub-dispatch reuses when
// sizing a commit's diff packer capacity (spec §4.4).
const (
	// PerCommitMetadataOverheadTokens covers each commit's YAML field
	// names, hash, author, and timestamp scaffolding.
	PerCommitMetadataOverheadTokens = 150
	// ViewEnvelopeOverheadTokens covers the RepositoryView's own YAML
	// wrapper: branch label, PR template, and list framing.
	ViewEnvelopeOverheadTokens = 300
	// UserPromptTemplateOverheadTokens covers the fixed instruction
	// text surrounding the serialized view in the user prompt.
	UserPromptTemplateOverheadTokens = 200
)

// saturatingSub subtracts b from a, floored at zero (mirrors Rust's
// usize::saturating_sub, which the overhead chain relies on to avoid
// underflow when overhead exceeds the available budget).
func saturatingSub(a, b int) int {
	if b >= a {
		return 0
	}
	return a - b
}

// EstimateCommitTokens estimates one commit's token footprint: its
// original message, its diff summary, the fixed per-commit metadata
// overhead, and the combined byte length of its file diffs.
func EstimateCommitTokens(commit domain.CommitInfo) int {
	totalFileBytes := 0
	for _, ref := range commit.FileDiffs {
		totalFileBytes += ref.ByteLen
	}

	return tokenbudget.EstimateTokens(commit.OriginalMessage) +
		tokenbudget.EstimateTokens(commit.DiffSummary) +
		PerCommitMetadataOverheadTokens +
		tokenbudget.EstimateTokensFromCharCount(totalFileBytes)
}

// BatchBudget computes the token budget available to one batch, given
// the model's available input tokens and the system prompt's token count.
func BatchBudget(availableInputTokens, systemPromptTokens int) int {
	budget := availableInputTokens
	budget = saturatingSub(budget, systemPromptTokens)
	budget = saturatingSub(budget, ViewEnvelopeOverheadTokens)
	budget = saturatingSub(budget, UserPromptTemplateOverheadTokens)
	return budget
}

// ChunkCapacity computes the effective capacity available to the Diff
// Packer for one commit's file-chunk sub-dispatch: the batch budget
// minus that commit's own message and diff-summary tokens, which ride
// along in every chunk.
func ChunkCapacity(availableInputTokens, systemPromptTokens int, commit domain.CommitInfo) int {
	commitTextTokens := tokenbudget.EstimateTokens(commit.OriginalMessage) + tokenbudget.EstimateTokens(commit.DiffSummary)

	capacity := availableInputTokens
	capacity = saturatingSub(capacity, systemPromptTokens)
	capacity = saturatingSub(capacity, ViewEnvelopeOverheadTokens)
	capacity = saturatingSub(capacity, PerCommitMetadataOverheadTokens)
	capacity = saturatingSub(capacity, UserPromptTemplateOverheadTokens)
	capacity = saturatingSub(capacity, commitTextTokens)

	logShort := commit.Hash
	if len(logShort) > 8 {
		logShort = logShort[:8]
	}
	logging.L().Debug().
		Str("commit", logShort).
		Int("available_input_tokens", availableInputTokens).
		Int("system_prompt_tokens", systemPromptTokens).
		Int("envelope_overhead", ViewEnvelopeOverheadTokens).
		Int("metadata_overhead", PerCommitMetadataOverheadTokens).
		Int("template_overhead", UserPromptTemplateOverheadTokens).
		Int("commit_text_tokens", commitTextTokens).
		Int("chunk_capacity", capacity).
		Msg("split dispatch: computed chunk capacity")

	return capacity
}

// Plan greedily packs commits into batches in input order. A new batch
// opens when adding the next commit would exceed the per-batch budget.
// A single commit that alone exceeds the budget still gets its own
// batch — the orchestrator is responsible for falling through to
// per-commit or file-level dispatch for it.
func Plan(commits []domain.CommitInfo, availableInputTokens, systemPromptTokens int) domain.BatchPlan {
	budget := BatchBudget(availableInputTokens, systemPromptTokens)

	var batches []domain.Batch
	var current []int
	currentTokens := 0

	for i, commit := range commits {
		commitTokens := EstimateCommitTokens(commit)

		if len(current) > 0 && currentTokens+commitTokens > budget {
			batches = append(batches, domain.Batch{CommitIndices: current})
			current = nil
			currentTokens = 0
		}

		current = append(current, i)
		currentTokens += commitTokens
	}

	if len(current) > 0 {
		batches = append(batches, domain.Batch{CommitIndices: current})
	}

	return domain.BatchPlan{Batches: batches}
}
