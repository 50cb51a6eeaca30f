package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/finadvisor/finance"
	_ "github.com/c360studio/finadvisor/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, finance.DefaultMultipliers(), cfg.Scenarios.Multipliers)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: openai
  model: gpt-4o-mini
scenarios:
  multipliers:
    pessimistic: 0.6
    realistic: 1.0
    optimistic: 1.5
session:
  ttl: 10m
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, 0.6, cfg.Scenarios.Multipliers.Pessimistic)
	assert.Equal(t, 1.5, cfg.Scenarios.Multipliers.Optimistic)
	assert.Equal(t, 10*time.Minute, cfg.Session.TTL)
	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestValidate_RejectsBadMultipliers(t *testing.T) {
	tests := []struct {
		name string
		m    finance.Multipliers
	}{
		{"pessimistic_above_one", finance.Multipliers{Pessimistic: 1.2, Realistic: 1, Optimistic: 1.3}},
		{"realistic_not_one", finance.Multipliers{Pessimistic: 0.7, Realistic: 0.9, Optimistic: 1.3}},
		{"optimistic_below_one", finance.Multipliers{Pessimistic: 0.7, Realistic: 1, Optimistic: 0.9}},
		{"optimistic_would_flip_debt_sign", finance.Multipliers{Pessimistic: 0.7, Realistic: 1, Optimistic: 1.6}},
		{"zero_values", finance.Multipliers{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Scenarios.Multipliers = tt.m

			var confErr *ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &confErr)
			assert.Equal(t, "scenarios.multipliers", confErr.Field)
		})
	}
}

func TestCheckCredentials(t *testing.T) {
	cfg := DefaultConfig()

	// Ollama needs no credential.
	cfg.Provider.Name = "ollama"
	assert.NoError(t, cfg.CheckCredentials())

	cfg.Provider.Name = "openai"
	t.Setenv("OPENAI_API_KEY", "")
	var confErr *ConfigurationError
	require.ErrorAs(t, cfg.CheckCredentials(), &confErr)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.NoError(t, cfg.CheckCredentials())

	// Unregistered provider names fail with a configuration error, not a
	// panic on a nil provider.
	cfg.Provider.Name = "nonexistent"
	err := cfg.CheckCredentials()
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "provider.name", confErr.Field)
	assert.Contains(t, err.Error(), `unknown provider "nonexistent"`)
}

func TestMultiplierWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	require.NoError(t, cfg.SaveToFile(path))

	watcher, err := NewMultiplierWatcher(path, cfg.Scenarios.Multipliers, nil)
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	assert.Equal(t, finance.DefaultMultipliers(), watcher.Multipliers())

	cfg.Scenarios.Multipliers = finance.Multipliers{Pessimistic: 0.5, Realistic: 1, Optimistic: 1.5}
	require.NoError(t, cfg.SaveToFile(path))

	require.Eventually(t, func() bool {
		return watcher.Multipliers().Optimistic == 1.5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMultiplierWatcher_KeepsCurrentOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	require.NoError(t, cfg.SaveToFile(path))

	watcher, err := NewMultiplierWatcher(path, cfg.Scenarios.Multipliers, nil)
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("scenarios: {multipliers: {pessimistic: 9}}"), 0644))

	// The invalid update must be rejected and the previous values kept.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, finance.DefaultMultipliers(), watcher.Multipliers())
}
