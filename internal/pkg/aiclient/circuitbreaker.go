package aiclient

import (
	"context"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"github.com/gitsage/gitsage/internal/pkg/logging"
)

// CircuitBreakerClient wraps an AiClient with errors.CircuitBreaker:
// once the provider fails FailureThreshold times in a row, further
// SendRequest calls fail fast with ErrCircuitOpen until ResetTimeout
// elapses, rather than letting every in-flight commit/chunk queue up
// against a provider that is already down.
type CircuitBreakerClient struct {
	inner   AiClient
	breaker *apperrors.CircuitBreaker
}

// NewCircuitBreakerClient wraps inner with a circuit breaker using cfg.
func NewCircuitBreakerClient(inner AiClient, cfg apperrors.CircuitBreakerConfig) AiClient {
	return &CircuitBreakerClient{inner: inner, breaker: apperrors.NewCircuitBreaker(cfg)}
}

func (c *CircuitBreakerClient) GetMetadata() domain.AiClientMetadata {
	return c.inner.GetMetadata()
}

func (c *CircuitBreakerClient) SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = c.inner.SendRequest(ctx, systemPrompt, userPrompt)
		return err
	})
	logging.LogCircuitBreaker(c.breaker.State().String(), c.breaker.ConsecutiveFailures())
	return text, err
}
