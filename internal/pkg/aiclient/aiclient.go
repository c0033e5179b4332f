// Package aiclient defines the dispatch core's sole provider-facing
// contract and the plug-in implementations backing it. The core never
// imports a concrete provider SDK directly; every call goes through
// this interface so the orchestrator, reducer, and response parser
// stay provider-agnostic.
package aiclient

import (
	"context"

	"github.com/gitsage/gitsage/internal/pkg/domain"
)

// AiClient is the provider-facing contract. Implementations must not
// mutate state visible to the core and may block on network I/O.
type AiClient interface {
	// SendRequest issues one system+user prompt pair and returns the
	// raw response text.
	SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GetMetadata returns the model limits backing token-budget checks.
	GetMetadata() domain.AiClientMetadata
}
