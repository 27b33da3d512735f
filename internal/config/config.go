// Package config loads the collector configuration.
//
// Configuration comes from a YAML file (default ~/.collect/config.yaml),
// overridable per-key with COLLECT_* environment variables
// (e.g. COLLECT_REMOTE_URL). A missing file is not an error; the engine then
// runs local-only until the remote section is filled in.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Remote configures the cloud endpoint. Incomplete or disabled remote
// settings put the engine in local-only mode; they never cause a startup
// failure.
type Remote struct {
	// URL is the database endpoint (libsql:// or https://).
	URL string `mapstructure:"url" yaml:"url"`

	// Token is the bearer credential attached to every remote call.
	Token string `mapstructure:"token" yaml:"token"`

	// Enabled gates all remote activity.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Store configures the local database.
type Store struct {
	// Path is the SQLite file backing the local library.
	Path string `mapstructure:"path" yaml:"path"`
}

// Daemon configures the background sync daemon.
type Daemon struct {
	// PullInterval is how often the daemon runs a pull-merge cycle.
	PullInterval time.Duration `mapstructure:"pull_interval" yaml:"pull_interval"`

	// DrainInterval is how often the retry ledger is swept.
	DrainInterval time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
}

// Dashboard configures the local status/WebSocket server.
type Dashboard struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// Config is the full collector configuration.
type Config struct {
	Remote    Remote    `mapstructure:"remote" yaml:"remote"`
	Store     Store     `mapstructure:"store" yaml:"store"`
	Daemon    Daemon    `mapstructure:"daemon" yaml:"daemon"`
	Dashboard Dashboard `mapstructure:"dashboard" yaml:"dashboard"`
}

// DefaultDir returns the directory holding config and data files.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collect"
	}
	return filepath.Join(home, ".collect")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: Store{Path: filepath.Join(DefaultDir(), "collect.db")},
		Daemon: Daemon{
			PullInterval:  5 * time.Minute,
			DrainInterval: time.Minute,
		},
		Dashboard: Dashboard{Port: 8377},
	}
}

// Load reads the configuration from path (or DefaultPath when path is
// empty), applying environment overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("COLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.enabled", false)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("daemon.pull_interval", def.Daemon.PullInterval)
	v.SetDefault("daemon.drain_interval", def.Daemon.DrainInterval)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", def.Dashboard.Port)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Daemon.PullInterval <= 0 {
		cfg.Daemon.PullInterval = def.Daemon.PullInterval
	}
	if cfg.Daemon.DrainInterval <= 0 {
		cfg.Daemon.DrainInterval = def.Daemon.DrainInterval
	}

	return &cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories. The file is written 0600 because it can carry the auth token.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Durations are written in their human form ("5m0s"), not nanoseconds.
	out := struct {
		Remote Remote `yaml:"remote"`
		Store  Store  `yaml:"store"`
		Daemon struct {
			PullInterval  string `yaml:"pull_interval"`
			DrainInterval string `yaml:"drain_interval"`
		} `yaml:"daemon"`
		Dashboard Dashboard `yaml:"dashboard"`
	}{Remote: c.Remote, Store: c.Store, Dashboard: c.Dashboard}
	out.Daemon.PullInterval = c.Daemon.PullInterval.String()
	out.Daemon.DrainInterval = c.Daemon.DrainInterval.String()

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
