package aiclient

import (
	"fmt"
	"os"

	"github.com/gitsage/gitsage/internal/pkg/config"
)

// New selects and constructs an AiClient plug-in from a ProviderConfig,
// honoring the core's provider-selection env vars (spec §6):
// USE_OPENAI, USE_OLLAMA, CLAUDE_CODE_USE_BEDROCK. cfg.Name wins when
// set explicitly; the env vars are the fallback a CLI-free caller
// relies on.
func New(cfg config.ProviderConfig) (AiClient, error) {
	name := cfg.Name
	if name == "" {
		name = providerFromEnv()
	}

	switch name {
	case "ollama":
		return NewOllamaClient(cfg.Model, cfg.Endpoint, cfg.MaxContextLength, cfg.MaxResponseLength)
	case "bedrock":
		return NewBedrockClient(cfg.Model, cfg.MaxContextLength, cfg.MaxResponseLength)
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Endpoint:          cfg.Endpoint,
			MaxContextLength:  cfg.MaxContextLength,
			MaxResponseLength: cfg.MaxResponseLength,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

func providerFromEnv() string {
	if os.Getenv("USE_OLLAMA") != "" {
		return "ollama"
	}
	if os.Getenv("CLAUDE_CODE_USE_BEDROCK") != "" {
		return "bedrock"
	}
	if os.Getenv("USE_OPENAI") != "" {
		return "openai"
	}
	return ""
}
