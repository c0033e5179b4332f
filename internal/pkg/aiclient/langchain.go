package aiclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChainClient implements AiClient over any langchaingo llms.Model,
// giving the dispatch core a single retry/error-wrapping path shared
// by every provider langchaingo supports (used here for Ollama and
// Bedrock; OpenAI-compatible endpoints go through OpenAIClient instead
// since go-openai already speaks that wire format directly).
type LangChainClient struct {
	llm          llms.Model
	metadata     domain.AiClientMetadata
	providerName string
}

// NewOllamaClient builds a LangChainClient backed by a local Ollama server.
func NewOllamaClient(model, endpoint string, maxContextLength, maxResponseLength int) (*LangChainClient, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to construct ollama client: %w", err)
	}

	return &LangChainClient{
		llm:          llm,
		providerName: "ollama",
		metadata: domain.AiClientMetadata{
			Provider:          "ollama",
			Model:             model,
			MaxContextLength:  maxContextLength,
			MaxResponseLength: maxResponseLength,
		},
	}, nil
}

// NewBedrockClient builds a LangChainClient backed by AWS Bedrock.
func NewBedrockClient(model string, maxContextLength, maxResponseLength int) (*LangChainClient, error) {
	llm, err := bedrock.New(bedrock.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to construct bedrock client: %w", err)
	}

	return &LangChainClient{
		llm:          llm,
		providerName: "bedrock",
		metadata: domain.AiClientMetadata{
			Provider:          "bedrock",
			Model:             model,
			MaxContextLength:  maxContextLength,
			MaxResponseLength: maxResponseLength,
		},
	}, nil
}

// GetMetadata implements AiClient.
func (c *LangChainClient) GetMetadata() domain.AiClientMetadata {
	return c.metadata
}

// SendRequest implements AiClient.
func (c *LangChainClient) SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	logging.LogAPIRequest(c.providerName, c.metadata.Model, len(userPrompt))
	startTime := time.Now()

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(c.metadata.MaxResponseLength))
	if err != nil {
		return "", c.wrapError(err)
	}

	rawText := ""
	if len(resp.Choices) > 0 {
		rawText = resp.Choices[0].Content
	}
	logging.LogAPIResponse(c.providerName, len(rawText), time.Since(startTime))

	if rawText == "" {
		return "", apperrors.NewAIProviderError(c.providerName, errors.New("no response from AI provider"))
	}

	return rawText, nil
}

// wrapError classifies a langchaingo error into the dispatch core's
// error taxonomy. langchaingo providers don't expose a typed error
// hierarchy uniformly across backends, so classification falls back
// to substring matching on the error text.
func (c *LangChainClient) wrapError(err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(strings.ToLower(errStr), "unauthorized"):
		return apperrors.NewAuthenticationError(c.providerName)
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests"):
		return apperrors.NewRateLimitError(60 * time.Second)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError(err)
	case strings.Contains(errStr, "connection refused"):
		appErr := apperrors.NewNetworkError(err)
		appErr.Message = fmt.Sprintf("cannot connect to %s", c.providerName)
		if c.providerName == "ollama" {
			appErr.WithSuggestion("ensure Ollama is running: ollama serve")
		}
		return appErr
	default:
		return apperrors.NewAIProviderError(c.providerName, err)
	}
}
