package aiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultTimeout is the default timeout for API calls.
	DefaultTimeout = 30 * time.Second
	// MaxRetries is the go-openai transport's own retry budget, distinct
	// from the orchestrator's bounded-retry loop around the whole call.
	MaxRetries = 3
	// InitialRetryDelay is the initial delay for exponential backoff.
	InitialRetryDelay = 1 * time.Second
	// MaxRetryDelay is the maximum delay for exponential backoff.
	MaxRetryDelay = 10 * time.Second
)

// OpenAIClient implements AiClient against the OpenAI chat completions
// API, and any OpenAI-compatible endpoint (DeepSeek, etc.) reachable
// via a custom base URL.
type OpenAIClient struct {
	client   *openai.Client
	metadata domain.AiClientMetadata
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey            string
	Model             string
	Endpoint          string
	MaxContextLength  int
	MaxResponseLength int
}

// NewOpenAIClient creates a new OpenAI-backed AiClient.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for the OpenAI plug-in")
	}
	if len(cfg.APIKey) < 20 {
		return nil, errors.New("API key appears to be invalid (too short)")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	clientConfig.HTTPClient = &http.Client{Timeout: DefaultTimeout, Transport: transport}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		metadata: domain.AiClientMetadata{
			Provider:          "openai",
			Model:             cfg.Model,
			MaxContextLength:  cfg.MaxContextLength,
			MaxResponseLength: cfg.MaxResponseLength,
		},
	}, nil
}

// GetMetadata implements AiClient.
func (c *OpenAIClient) GetMetadata() domain.AiClientMetadata {
	return c.metadata
}

// SendRequest implements AiClient.
func (c *OpenAIClient) SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.metadata.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: c.metadata.MaxResponseLength,
	}

	logging.LogAPIRequest(c.metadata.Provider, c.metadata.Model, len(userPrompt))
	startTime := time.Now()

	var resp openai.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}

		if !isRetryableTransportError(lastErr) {
			return "", wrapAPIError(lastErr)
		}

		delay := calculateBackoff(attempt)
		logging.LogRetry(attempt+1, MaxRetries, lastErr, delay)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastErr != nil {
		return "", wrapAPIError(lastErr)
	}

	duration := time.Since(startTime)
	responseLen := 0
	if len(resp.Choices) > 0 {
		responseLen = len(resp.Choices[0].Message.Content)
	}
	logging.LogAPIResponse(c.metadata.Provider, responseLen, duration)

	if len(resp.Choices) == 0 {
		return "", apperrors.NewAIProviderError(c.metadata.Provider, errors.New("no response from AI provider"))
	}

	return resp.Choices[0].Message.Content, nil
}

func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func calculateBackoff(attempt int) time.Duration {
	delay := InitialRetryDelay * time.Duration(1<<uint(attempt))
	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}
	return delay
}

func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return apperrors.NewAuthenticationError("OpenAI")
		case http.StatusTooManyRequests:
			return apperrors.NewRateLimitError(60 * time.Second)
		case http.StatusBadRequest:
			return apperrors.Wrap(err, apperrors.ErrAIProviderFailed, fmt.Sprintf("invalid request: %s", apiErr.Message))
		default:
			return apperrors.NewAPIRequestFailedError(apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(err)
	}

	return apperrors.NewNetworkError(err)
}
