// Package config loads runtime configuration from a config file,
// environment variables, and defaults, in that order of precedence
// (flags are bound by the commands on top).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Root is the watched directory tree.
	Root string `mapstructure:"root"`

	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// ListenAddr is the live notification server's bind address.
	ListenAddr string `mapstructure:"listen_addr"`

	// Debounce is how long a changed file must stay quiet before it
	// is re-parsed.
	Debounce time.Duration `mapstructure:"debounce"`

	// GitTimeout bounds each git invocation during commit import.
	GitTimeout time.Duration `mapstructure:"git_timeout"`

	// ScanOnStart controls the catch-up walk before watching begins.
	ScanOnStart bool `mapstructure:"scan_on_start"`

	// LogFile, when set, routes daemon logs to a rotating file
	// instead of stderr.
	LogFile string `mapstructure:"log_file"`
}

// Load resolves configuration. A config file named sessionwatch.yaml is
// looked up in the current directory and under the user config dir; a
// missing file is fine, defaults and SESSIONWATCH_* environment
// variables still apply.
func Load() (*Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("root", filepath.Join(home, ".claude"))
	v.SetDefault("db_path", filepath.Join(home, ".sessionwatch", "sessionwatch.db"))
	v.SetDefault("listen_addr", "127.0.0.1:4517")
	v.SetDefault("debounce", 200*time.Millisecond)
	v.SetDefault("git_timeout", 30*time.Second)
	v.SetDefault("scan_on_start", true)
	v.SetDefault("log_file", "")

	v.SetConfigName("sessionwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if cfgDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(cfgDir, "sessionwatch"))
	}

	v.SetEnvPrefix("SESSIONWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("root directory is not configured")
	}
	return &cfg, nil
}
