// Package tokenbudget estimates prompt sizes from raw byte counts and
// checks them against a model's available input budget. It never calls
// a provider's own tokenizer; the estimate is a fixed-ratio approximation
// deliberately biased conservative so that downstream packers and
// orchestrators fail toward a smaller dispatch scope rather than an
// oversized request.
package tokenbudget

import (
	"math"

	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
)

const (
	// CharsPerToken is the fixed characters-per-token ratio used for
	// every estimate in the dispatch core.
	CharsPerToken = 3.5
	// Margin inflates the raw estimate to absorb tokenizer variance
	// across providers.
	Margin = 1.2
	// SafetyMargin is reserved off the top of the context window on
	// top of the model's reported max response length, covering
	// provider-side chat-template and tool-call scaffolding that the
	// byte-count estimate can't see.
	SafetyMargin = 512
)

// Metadata describes the AiClient plug-in's model limits. It mirrors
// the subset of AiClientMetadata the budget calculation needs.
type Metadata struct {
	MaxContextLength  int
	MaxResponseLength int
}

// Estimate is the result of validating a prompt against the budget.
type Estimate struct {
	EstimatedTokens int
	AvailableTokens int
	UtilizationPct  float64
}

// Budget computes token estimates and availability for one model.
type Budget struct {
	metadata Metadata
}

// FromMetadata builds a Budget from AiClient plug-in metadata.
func FromMetadata(metadata Metadata) Budget {
	return Budget{metadata: metadata}
}

// EstimateTokens estimates the token count of text.
func EstimateTokens(text string) int {
	return EstimateTokensFromCharCount(len(text))
}

// EstimateTokensFromCharCount estimates tokens from a raw byte/char count.
func EstimateTokensFromCharCount(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * Margin / CharsPerToken))
}

// AvailableInputTokens returns the input budget left after reserving
// space for the model's max response and the fixed safety margin.
//
// Invariant: callers must ensure MaxContextLength > MaxResponseLength;
// a Metadata violating that invariant yields a (possibly negative)
// budget that ValidatePrompt will reject as exceeded.
func (b Budget) AvailableInputTokens() int {
	return b.metadata.MaxContextLength - b.metadata.MaxResponseLength - SafetyMargin
}

// ValidatePrompt estimates the combined token footprint of a system and
// user prompt and checks it against the available input budget.
// Enforcement is advisory: returning an *apperrors.AppError of code
// ErrBudgetExceeded signals the caller should fall back to a
// smaller-scope dispatch strategy, not abort outright.
func (b Budget) ValidatePrompt(systemPrompt, userPrompt string) (Estimate, error) {
	estimated := EstimateTokens(systemPrompt) + EstimateTokens(userPrompt)
	available := b.AvailableInputTokens()

	utilization := 0.0
	if available > 0 {
		utilization = float64(estimated) / float64(available) * 100
	}

	estimate := Estimate{
		EstimatedTokens: estimated,
		AvailableTokens: available,
		UtilizationPct:  utilization,
	}

	if estimated > available {
		return estimate, apperrors.NewBudgetExceededError(estimated, available)
	}

	return estimate, nil
}
