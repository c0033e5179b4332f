package aiclient

import (
	"context"

	"github.com/gitsage/gitsage/internal/pkg/cache"
	"github.com/gitsage/gitsage/internal/pkg/domain"
)

// CachingClient wraps an AiClient with a process-lifetime, in-memory
// cache keyed on the exact prompt pair. It de-duplicates identical
// in-flight prompts within a single dispatch call (e.g. a chunk and
// its retry, or two commits whose diffs collapse to the same text) —
// never across process runs (spec §13).
type CachingClient struct {
	inner AiClient
	cache cache.Manager
}

// NewCachingClient wraps inner with mgr. A nil mgr makes Wrap a no-op passthrough.
func NewCachingClient(inner AiClient, mgr cache.Manager) AiClient {
	if mgr == nil {
		return inner
	}
	return &CachingClient{inner: inner, cache: mgr}
}

func (c *CachingClient) GetMetadata() domain.AiClientMetadata {
	return c.inner.GetMetadata()
}

func (c *CachingClient) SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	meta := c.inner.GetMetadata()
	key := cache.GenerateCacheKey(userPrompt, meta.Provider, meta.Model, systemPrompt)

	if cached, ok := c.cache.Get(key); ok {
		if text, ok := cached.(string); ok {
			return text, nil
		}
	}

	text, err := c.inner.SendRequest(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, text, 0)
	return text, nil
}
