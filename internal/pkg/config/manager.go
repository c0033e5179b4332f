package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigLoadTimeout is the timeout for loading configuration.
	ConfigLoadTimeout = 100 * time.Millisecond
)

const (
	// DefaultConfigFileName is the default config file name without extension.
	DefaultConfigFileName = ".gitsage"
	// DefaultConfigFileExt is the default config file extension.
	DefaultConfigFileExt = "yaml"
)

// ViperManager implements the Manager interface using Viper.
type ViperManager struct {
	v          *viper.Viper
	configPath string
}

// NewManager creates a new configuration manager.
// If configPath is empty, it uses the default path (~/.gitsage/config.yaml).
func NewManager(configPath string) (*ViperManager, error) {
	v := viper.New()
	v.SetConfigType(DefaultConfigFileExt)

	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, ".gitsage", "config.yaml")
	}
	v.SetConfigFile(configPath)

	v.SetEnvPrefix("GITSAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	return &ViperManager{v: v, configPath: configPath}, nil
}

// bindEnvVars explicitly binds environment variables for all config keys,
// including the provider-selection flags spec §6 names as core-visible
// (USE_OPENAI, USE_OLLAMA, CLAUDE_CODE_USE_BEDROCK, ANTHROPIC_MODEL,
// OPENAI_MODEL, OLLAMA_MODEL) alongside the GITSAGE_-prefixed overrides.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("provider.name", "GITSAGE_PROVIDER_NAME")
	_ = v.BindEnv("provider.api_key", "GITSAGE_PROVIDER_API_KEY")
	_ = v.BindEnv("provider.model", "GITSAGE_PROVIDER_MODEL")
	_ = v.BindEnv("provider.endpoint", "GITSAGE_PROVIDER_ENDPOINT")
	_ = v.BindEnv("provider.temperature", "GITSAGE_PROVIDER_TEMPERATURE")
	_ = v.BindEnv("provider.max_tokens", "GITSAGE_PROVIDER_MAX_TOKENS")
	_ = v.BindEnv("provider.max_context_length", "GITSAGE_PROVIDER_MAX_CONTEXT_LENGTH")
	_ = v.BindEnv("provider.max_response_length", "GITSAGE_PROVIDER_MAX_RESPONSE_LENGTH")

	_ = v.BindEnv("dispatch.concurrency", "GITSAGE_DISPATCH_CONCURRENCY")
	_ = v.BindEnv("dispatch.max_retries", "GITSAGE_DISPATCH_MAX_RETRIES")
	_ = v.BindEnv("dispatch.chunk_capacity_factor", "GITSAGE_DISPATCH_CHUNK_CAPACITY_FACTOR")
	_ = v.BindEnv("dispatch.batch_capacity_factor", "GITSAGE_DISPATCH_BATCH_CAPACITY_FACTOR")
	_ = v.BindEnv("dispatch.no_coherence", "GITSAGE_DISPATCH_NO_COHERENCE")
	_ = v.BindEnv("dispatch.interactive", "GITSAGE_DISPATCH_INTERACTIVE")

	_ = v.BindEnv("security.warning_acknowledged", "GITSAGE_SECURITY_WARNING_ACKNOWLEDGED")

	_ = v.BindEnv("cache.enabled", "GITSAGE_CACHE_ENABLED")
	_ = v.BindEnv("cache.max_entries", "GITSAGE_CACHE_MAX_ENTRIES")
	_ = v.BindEnv("cache.ttl_minutes", "GITSAGE_CACHE_TTL_MINUTES")

	// Provider selection flags named directly in spec §6; read as-is,
	// without the GITSAGE_ prefix, since they select the plug-in rather
	// than configure gitsage itself.
	_ = v.BindEnv("env.use_openai", "USE_OPENAI")
	_ = v.BindEnv("env.use_ollama", "USE_OLLAMA")
	_ = v.BindEnv("env.use_bedrock", "CLAUDE_CODE_USE_BEDROCK")
	_ = v.BindEnv("env.anthropic_model", "ANTHROPIC_MODEL")
	_ = v.BindEnv("env.openai_model", "OPENAI_MODEL")
	_ = v.BindEnv("env.ollama_model", "OLLAMA_MODEL")
}

// setDefaults sets the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.endpoint", "")
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.max_context_length", 128000)
	v.SetDefault("provider.max_response_length", 4096)

	d := DefaultDispatchConfig()
	v.SetDefault("dispatch.concurrency", d.Concurrency)
	v.SetDefault("dispatch.max_retries", d.MaxRetries)
	v.SetDefault("dispatch.chunk_capacity_factor", d.ChunkCapacityFactor)
	v.SetDefault("dispatch.batch_capacity_factor", d.BatchCapacityFactor)
	v.SetDefault("dispatch.no_coherence", d.NoCoherence)
	v.SetDefault("dispatch.interactive", d.Interactive)

	v.SetDefault("security.warning_acknowledged", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl_minutes", 60)
}

// GetConfigPath returns the path to the configuration file.
func (m *ViperManager) GetConfigPath() string {
	return m.configPath
}

// Load loads the configuration from file, environment, and defaults.
// Priority: flags > env > file > defaults.
func (m *ViperManager) Load() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithTimeout loads the configuration with a timeout.
func (m *ViperManager) LoadWithTimeout(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, ConfigLoadTimeout)
	defer cancel()

	type result struct {
		cfg *Config
		err error
	}
	ch := make(chan result, 1)

	go func() {
		cfg, err := m.Load()
		ch <- result{cfg, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("config loading timed out after %v", ConfigLoadTimeout)
	case r := <-ch:
		return r.cfg, r.err
	}
}

// Init creates a new configuration file with default values.
func (m *ViperManager) Init() error {
	if _, err := os.Stat(m.configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", m.configPath)
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.v.WriteConfigAs(m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Chmod(m.configPath, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	return nil
}

// Save saves the configuration to file.
func (m *ViperManager) Save(config *Config) error {
	m.v.Set("provider", config.Provider)
	m.v.Set("dispatch", config.Dispatch)
	m.v.Set("security", config.Security)
	m.v.Set("cache", config.Cache)

	if err := m.v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Set sets a configuration value by key. Supports nested keys using dot
// notation (e.g., "provider.name").
func (m *ViperManager) Set(key string, value string) error {
	if err := m.v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	existingValue := m.v.Get(key)
	convertedValue, err := convertValue(value, existingValue)
	if err != nil {
		return fmt.Errorf("failed to convert value for key %s: %w", key, err)
	}

	m.v.Set(key, convertedValue)

	if err := m.v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// convertValue converts a string value to the type of existingValue.
func convertValue(value string, existingValue interface{}) (interface{}, error) {
	if existingValue == nil {
		return value, nil
	}

	switch existingValue.(type) {
	case bool:
		return strconv.ParseBool(value)
	case int, int64:
		return strconv.ParseInt(value, 10, 64)
	case float32, float64:
		return strconv.ParseFloat(value, 64)
	case []interface{}, []string:
		return strings.Split(value, ","), nil
	default:
		return value, nil
	}
}

// Get retrieves a configuration value by key.
func (m *ViperManager) Get(key string) (string, error) {
	if err := m.v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
	}

	value := m.v.Get(key)
	if value == nil {
		return "", fmt.Errorf("key not found: %s", key)
	}

	return fmt.Sprintf("%v", value), nil
}

// List returns all configuration values as a map.
func (m *ViperManager) List() map[string]interface{} {
	_ = m.v.ReadInConfig()
	return m.v.AllSettings()
}

// SetOverride sets a temporary override for a configuration key, used
// for command-line flag overrides that should not persist.
func (m *ViperManager) SetOverride(key string, value interface{}) {
	m.v.Set(key, value)
}

// MaskAPIKey masks an API key, showing only the last 4 characters.
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// ConfigExists checks if the configuration file exists.
func (m *ViperManager) ConfigExists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

// AcknowledgeSecurityWarning marks the security warning as acknowledged.
func (m *ViperManager) AcknowledgeSecurityWarning() error {
	return m.Set("security.warning_acknowledged", "true")
}

// IsSecurityWarningAcknowledged checks if the security warning has been acknowledged.
func (m *ViperManager) IsSecurityWarningAcknowledged() bool {
	_ = m.v.ReadInConfig()
	return m.v.GetBool("security.warning_acknowledged")
}

// ProviderSelection reads the core-visible provider-selection env vars
// named in spec §6, without reading credentials (those are the plug-in's
// concern, never the core's).
type ProviderSelection struct {
	UseOpenAI      bool
	UseOllama      bool
	UseBedrock     bool
	AnthropicModel string
	OpenAIModel    string
	OllamaModel    string
}

// ReadProviderSelection resolves the provider-selection flags from the
// environment via viper's bound env vars.
func (m *ViperManager) ReadProviderSelection() ProviderSelection {
	return ProviderSelection{
		UseOpenAI:      m.v.GetBool("env.use_openai"),
		UseOllama:      m.v.GetBool("env.use_ollama"),
		UseBedrock:     m.v.GetBool("env.use_bedrock"),
		AnthropicModel: m.v.GetString("env.anthropic_model"),
		OpenAIModel:    m.v.GetString("env.openai_model"),
		OllamaModel:    m.v.GetString("env.ollama_model"),
	}
}
