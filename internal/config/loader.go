package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with precedence: defaults < config file < env vars.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) setupViper(cfg *Config) {
	l.v.SetDefault("logging.level", cfg.Logging.Level)
	l.v.SetDefault("logging.format", cfg.Logging.Format)
	l.v.SetDefault("user.name", cfg.User.Name)
	l.v.SetDefault("user.avatar", cfg.User.Avatar)
	l.v.SetDefault("user.color", cfg.User.Color)
	l.v.SetDefault("backend.publish_key", cfg.Backend.PublishKey)
	l.v.SetDefault("backend.subscribe_key", cfg.Backend.SubscribeKey)
	l.v.SetDefault("engine.page_size", cfg.Engine.PageSize)
	l.v.SetDefault("engine.presence_poll_interval", cfg.Engine.PresencePollInterval)
	l.v.SetDefault("engine.typing_idle_timeout", cfg.Engine.TypingIdleTimeout)
	l.v.SetDefault("engine.read_settle_delay", cfg.Engine.ReadSettleDelay)
	l.v.SetDefault("engine.presence_state_retry_base", cfg.Engine.PresenceStateRetryBase)
	l.v.SetDefault("engine.presence_state_retry_max", cfg.Engine.PresenceStateRetryMax)

	l.v.SetEnvPrefix("PALAVER")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		return l.v.ReadInConfig()
	}

	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(DefaultConfigDir())
	l.v.AddConfigPath(".")

	err := l.v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFilePath returns the path of the loaded config file, if any.
func (l *Loader) ConfigFilePath() string {
	if l.configFile != "" {
		return l.configFile
	}
	if used := l.v.ConfigFileUsed(); used != "" {
		return filepath.Clean(used)
	}
	return ""
}
