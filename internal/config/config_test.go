package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 20, cfg.Engine.PageSize)
	require.Equal(t, 10*time.Second, cfg.Engine.PresencePollInterval)
	require.Equal(t, 2*time.Second, cfg.Engine.TypingIdleTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero page size", func(c *Config) { c.Engine.PageSize = 0 }},
		{"negative poll interval", func(c *Config) { c.Engine.PresencePollInterval = -time.Second }},
		{"zero typing timeout", func(c *Config) { c.Engine.TypingIdleTimeout = 0 }},
		{"negative settle delay", func(c *Config) { c.Engine.ReadSettleDelay = -time.Millisecond }},
		{"blank user name", func(c *Config) { c.User.Name = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadOrCreateUserIDPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "palaver")

	first, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Second call returns the persisted id, not a fresh one.
	second, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(dir, "user_id"))
	require.NoError(t, err)
	require.Contains(t, string(data), first)
}

func TestLoadOrCreateUserIDIgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user_id"), []byte("  \n"), 0o600))

	id, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestLoaderDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 20, cfg.Engine.PageSize)
	require.Equal(t, "anonymous", cfg.User.Name)
}

func TestLoaderReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
user:
  name: tester
engine:
  page_size: 50
  typing_idle_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "tester", cfg.User.Name)
	require.Equal(t, 50, cfg.Engine.PageSize)
	require.Equal(t, 3*time.Second, cfg.Engine.TypingIdleTimeout)
	// Untouched keys keep their defaults.
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, path, loader.ConfigFilePath())
}

func TestLoaderMissingExplicitFileFails(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("PALAVER_ENGINE_PAGE_SIZE", "7")
	t.Setenv("PALAVER_USER_NAME", "env-user")

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Engine.PageSize)
	require.Equal(t, "env-user", cfg.User.Name)
}

func TestLoaderInvalidFileConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  page_size: -1\n"), 0o600))

	loader := NewLoader()
	loader.SetConfigFile(path)
	_, err := loader.Load()
	require.Error(t, err)
}
