// Package config provides configuration loading and management for the
// advisory service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/finadvisor/finance"
	"github.com/c360studio/finadvisor/llm"
)

// Config represents the complete service configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Retry     RetryConfig     `yaml:"retry"`
	Scenarios ScenariosConfig `yaml:"scenarios"`
	Session   SessionConfig   `yaml:"session"`
	HTTP      HTTPConfig      `yaml:"http"`
	Export    ExportConfig    `yaml:"export"`
}

// ProviderConfig configures the completion provider.
type ProviderConfig struct {
	// Name selects the registered provider ("openai", "anthropic", "ollama")
	Name string `yaml:"name"`
	// Model is the model identifier (e.g. "gpt-4o-mini")
	Model string `yaml:"model"`
	// URL overrides the provider's default endpoint (required for ollama setups on non-default ports)
	URL string `yaml:"url"`
	// Timeout is the maximum time to wait for one completion attempt
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig configures completion retries.
type RetryConfig struct {
	// MaxAttempts is the number of sequential attempts per completion (default: 3)
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBase is the first retry delay, doubled per attempt (default: 2s)
	BackoffBase time.Duration `yaml:"backoff_base"`
	// MaxJitter is the upper bound of the random delay added to each backoff
	MaxJitter time.Duration `yaml:"max_jitter"`
}

// ScenariosConfig configures the simulation multipliers. Hot-reloadable.
type ScenariosConfig struct {
	Multipliers finance.Multipliers `yaml:"multipliers"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	// TTL evicts sessions idle longer than this (default: 30m)
	TTL time.Duration `yaml:"ttl"`
	// MaxSessions caps live sessions; 0 disables the cap
	MaxSessions int `yaml:"max_sessions"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `yaml:"addr"`
	// RequestTimeout bounds each request including its provider calls
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ExportConfig configures document export.
type ExportConfig struct {
	// Dir is the directory exported documents are written to
	Dir string `yaml:"dir"`
}

// ConfigurationError is fatal at process start: the service must not come
// up with a broken provider setup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:    "ollama",
			Model:   "qwen2.5:14b",
			URL:     "",
			Timeout: 3 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
			MaxJitter:   time.Second,
		},
		Scenarios: ScenariosConfig{
			Multipliers: finance.DefaultMultipliers(),
		},
		Session: SessionConfig{
			TTL:         30 * time.Minute,
			MaxSessions: 1000,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RequestTimeout: 5 * time.Minute,
		},
		Export: ExportConfig{
			Dir: "exports",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return &ConfigurationError{Field: "provider.name", Err: fmt.Errorf("is required")}
	}
	if c.Provider.Model == "" {
		return &ConfigurationError{Field: "provider.model", Err: fmt.Errorf("is required")}
	}
	if c.Retry.MaxAttempts < 1 {
		return &ConfigurationError{Field: "retry.max_attempts", Err: fmt.Errorf("must be at least 1")}
	}
	if err := validateMultipliers(c.Scenarios.Multipliers); err != nil {
		return &ConfigurationError{Field: "scenarios.multipliers", Err: err}
	}
	if c.Session.TTL <= 0 {
		return &ConfigurationError{Field: "session.ttl", Err: fmt.Errorf("must be positive")}
	}
	if c.HTTP.Addr == "" {
		return &ConfigurationError{Field: "http.addr", Err: fmt.Errorf("is required")}
	}
	return nil
}

func validateMultipliers(m finance.Multipliers) error {
	if m.Pessimistic <= 0 || m.Pessimistic >= 1 {
		return fmt.Errorf("pessimistic must be in (0,1), got %g", m.Pessimistic)
	}
	if m.Realistic != 1 {
		return fmt.Errorf("realistic must be 1, got %g", m.Realistic)
	}
	// Above 1.5 the strongest debt optimization (tier 1.3) would drive the
	// simulation's reduction factor negative.
	if m.Optimistic <= 1 || m.Optimistic > 1.5 {
		return fmt.Errorf("optimistic must be in (1,1.5], got %g", m.Optimistic)
	}
	return nil
}

// CheckCredentials verifies the configured provider's credential is present
// in the environment. Missing credentials halt startup.
func (c *Config) CheckCredentials() error {
	provider := llm.GetProvider(c.Provider.Name)
	if provider == nil {
		return &ConfigurationError{
			Field: "provider.name",
			Err:   fmt.Errorf("unknown provider %q", c.Provider.Name),
		}
	}
	if env := provider.RequiredEnv(); env != "" && os.Getenv(env) == "" {
		return &ConfigurationError{
			Field: "provider.name",
			Err:   fmt.Errorf("environment variable %s is required for provider %q", env, c.Provider.Name),
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, applying defaults for
// omitted fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
