// Package config loads stride's configuration.
//
// Settings come from config.yaml in the XDG config directory
// ($XDG_CONFIG_HOME/stride or ~/.config/stride), overridable via STRIDE_*
// environment variables and command-line flags. Timing knobs default to
// the engine's documented values; changing them is supported but rarely
// needed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mbaren/stride/internal/recur"
)

// AppName is the application directory name.
const AppName = "stride"

// ConfigFile is the configuration filename inside the config directory.
const ConfigFile = "config.yaml"

// Config holds all tunable settings.
type Config struct {
	// StoreDSN is the Postgres connection string of the hosted store.
	StoreDSN string `mapstructure:"store_dsn"`

	// Owner identifies this account; realtime events from other owners
	// are ignored.
	Owner string `mapstructure:"owner"`

	// Channel is the LISTEN/NOTIFY channel carrying change events.
	Channel string `mapstructure:"channel"`

	// GuardWindow protects fresh local edits from racing reloads.
	GuardWindow time.Duration `mapstructure:"guard_window"`

	// UndoExpiry is the delete-undo lifetime.
	UndoExpiry time.Duration `mapstructure:"undo_expiry"`

	// BatchSize is the recurring generation batch size.
	BatchSize int `mapstructure:"batch_size"`

	// ReloadDebounce collapses bursts of reload triggers.
	ReloadDebounce time.Duration `mapstructure:"reload_debounce"`

	// LoadTimeout bounds every load; exceeding it degrades rather than
	// blocks.
	LoadTimeout time.Duration `mapstructure:"load_timeout"`

	// Eligibility selects the future-eligible predicate for propagation
	// and partial regeneration.
	Eligibility string `mapstructure:"eligibility"`

	// SyncInterval is the periodic background reload cadence for
	// `stride sync`.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Load reads configuration from dir (empty = default config dir), applying
// env overrides. A missing config file is fine: defaults apply.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ConfigFile))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("channel", "stride_changes")
	v.SetDefault("guard_window", 2*time.Second)
	v.SetDefault("undo_expiry", 3*time.Second)
	v.SetDefault("batch_size", 50)
	v.SetDefault("reload_debounce", 500*time.Millisecond)
	v.SetDefault("load_timeout", 30*time.Second)
	v.SetDefault("eligibility", string(recur.DueTodayOrIncomplete))
	v.SetDefault("sync_interval", 5*time.Minute)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !recur.EligibilityPolicy(c.Eligibility).IsValid() {
		return fmt.Errorf("config: unknown eligibility policy %q", c.Eligibility)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be positive (got %d)", c.BatchSize)
	}
	return nil
}

// Policy returns the configured eligibility policy.
func (c *Config) Policy() recur.EligibilityPolicy {
	return recur.EligibilityPolicy(c.Eligibility)
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory if home is unknown.
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Path returns the config file path under dir (empty = default dir).
func Path(dir string) string {
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return filepath.Join(dir, ConfigFile)
}
