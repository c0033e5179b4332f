// Package config provides configuration management for the dispatch
// core and its CLI surface.
package config

// Config represents the complete gitsage configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Security SecurityConfig `mapstructure:"security"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// DispatchConfig contains the Request Orchestrator's tunables (spec §4.4, §5).
type DispatchConfig struct {
	// Concurrency is the semaphore permit count gating outbound LLM calls.
	Concurrency int `mapstructure:"concurrency"`
	// MaxRetries is the bounded-retry budget per LLM call (spec: 2, i.e. 3 total attempts).
	MaxRetries int `mapstructure:"max_retries"`
	// ChunkCapacityFactor is the Diff Packer's effective-capacity headroom (spec: 0.70).
	ChunkCapacityFactor float64 `mapstructure:"chunk_capacity_factor"`
	// BatchCapacityFactor is the Batch Planner's headroom, smaller than the packer's.
	BatchCapacityFactor float64 `mapstructure:"batch_capacity_factor"`
	// NoCoherence disables the cross-commit coherence pass (spec §4.6).
	NoCoherence bool `mapstructure:"no_coherence"`
	// Interactive gates the interactive retry loop; forced false when stdin is not a terminal.
	Interactive bool `mapstructure:"interactive"`
}

// CacheConfig contains in-process, single-call response cache settings.
// Per spec §1/§13, this never persists across runs.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxEntries int  `mapstructure:"max_entries"`
	TTLMinutes int  `mapstructure:"ttl_minutes"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	WarningAcknowledged bool `mapstructure:"warning_acknowledged"`
}

// ProviderConfig contains AiClient plug-in settings (spec §6).
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Endpoint    string  `mapstructure:"endpoint"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// MaxContextLength and MaxResponseLength back AiClientMetadata
	// (spec §3) when the plug-in does not report them dynamically.
	MaxContextLength  int `mapstructure:"max_context_length"`
	MaxResponseLength int `mapstructure:"max_response_length"`
}

// DefaultDispatchConfig returns the dispatch core's default tunables,
// matching the constants named throughout spec.md.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Concurrency:         4,
		MaxRetries:          2,
		ChunkCapacityFactor: 0.70,
		BatchCapacityFactor: 0.85,
		NoCoherence:         false,
		Interactive:         true,
	}
}

// Manager defines the interface for configuration management.
type Manager interface {
	Load() (*Config, error)
	Save(config *Config) error
	Set(key string, value string) error
	Get(key string) (string, error)
	Init() error
	List() map[string]interface{}
	GetConfigPath() string
}
