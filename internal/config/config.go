// Package config handles Palaver configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config is the root configuration structure.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// User is the local user's display identity.
	User UserConfig `yaml:"user" mapstructure:"user"`

	// Backend holds realtime backend credentials.
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Engine tunes the sync engine.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`
}

// UserConfig is the local user's display identity. The stable user id is
// generated once and persisted separately (see LoadOrCreateUserID).
type UserConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Avatar string `yaml:"avatar" mapstructure:"avatar"`
	Color  string `yaml:"color" mapstructure:"color"`
}

// BackendConfig contains realtime backend credentials.
type BackendConfig struct {
	PublishKey   string `yaml:"publish_key" mapstructure:"publish_key"`
	SubscribeKey string `yaml:"subscribe_key" mapstructure:"subscribe_key"`
}

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	// PageSize is how many messages each history fetch requests.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// PresencePollInterval is how often the full roster snapshot is refetched
	// as a self-healing baseline against missed presence events.
	PresencePollInterval time.Duration `yaml:"presence_poll_interval" mapstructure:"presence_poll_interval"`

	// TypingIdleTimeout is how long after the last keystroke the outbound
	// typing indicator is withdrawn.
	TypingIdleTimeout time.Duration `yaml:"typing_idle_timeout" mapstructure:"typing_idle_timeout"`

	// ReadSettleDelay is how long the read-receipt broadcast waits after the
	// view reaches the newest message, coalescing rapid triggers.
	ReadSettleDelay time.Duration `yaml:"read_settle_delay" mapstructure:"read_settle_delay"`

	// PresenceStateRetryBase is the initial backoff for presence state
	// broadcast retries. Doubles per attempt.
	PresenceStateRetryBase time.Duration `yaml:"presence_state_retry_base" mapstructure:"presence_state_retry_base"`

	// PresenceStateRetryMax caps presence state broadcast retry attempts.
	PresenceStateRetryMax int `yaml:"presence_state_retry_max" mapstructure:"presence_state_retry_max"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		User: UserConfig{
			Name: "anonymous",
		},
		Engine: EngineConfig{
			PageSize:               20,
			PresencePollInterval:   10 * time.Second,
			TypingIdleTimeout:      2 * time.Second,
			ReadSettleDelay:        500 * time.Millisecond,
			PresenceStateRetryBase: time.Second,
			PresenceStateRetryMax:  5,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	if c.Engine.PageSize <= 0 {
		return fmt.Errorf("engine.page_size must be positive, got %d", c.Engine.PageSize)
	}
	if c.Engine.PresencePollInterval <= 0 {
		return fmt.Errorf("engine.presence_poll_interval must be positive")
	}
	if c.Engine.TypingIdleTimeout <= 0 {
		return fmt.Errorf("engine.typing_idle_timeout must be positive")
	}
	if c.Engine.ReadSettleDelay < 0 {
		return fmt.Errorf("engine.read_settle_delay must not be negative")
	}
	if strings.TrimSpace(c.User.Name) == "" {
		return fmt.Errorf("user.name must not be empty")
	}
	return nil
}

// DefaultConfigDir returns the per-user config directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".palaver"
	}
	return filepath.Join(home, ".config", "palaver")
}

// LoadOrCreateUserID returns the stable local user id, generating and
// persisting one under dir on first use.
func LoadOrCreateUserID(dir string) (string, error) {
	path := filepath.Join(dir, "user_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	return id, nil
}
