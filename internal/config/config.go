// Package config resolves the process configuration from flags, config
// file, and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is everything the server and CLI need to run.
type Config struct {
	// DBPath is the cache store file. ":memory:" works for ephemeral runs.
	DBPath string `mapstructure:"db_path"`
	// Socket is the Unix socket the RPC server listens on.
	Socket string `mapstructure:"socket"`

	// Upstream credentials. Opaque to the cache itself.
	APIKey    string `mapstructure:"api_key"`
	AccountID string `mapstructure:"account_id"`
	BaseURL   string `mapstructure:"base_url"`

	// Timezone applied when the formatter stringifies date-time values.
	Timezone string `mapstructure:"timezone"`

	Debug bool `mapstructure:"debug"`
}

// Load reads configuration: defaults, then an optional config file at
// ~/.ssc/config.yaml, then environment variables. SMARTSUITE_* names
// cover the upstream settings, SSC_* the local ones.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	baseDir := filepath.Join(home, ".ssc")

	v.SetDefault("db_path", filepath.Join(baseDir, "cache.db"))
	v.SetDefault("socket", filepath.Join(baseDir, "ssc.sock"))
	v.SetDefault("base_url", "")
	v.SetDefault("timezone", "")
	v.SetDefault("debug", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(baseDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range map[string]string{
		"db_path":    "SSC_DB_PATH",
		"socket":     "SSC_SOCKET",
		"debug":      "SSC_DEBUG",
		"api_key":    "SMARTSUITE_API_KEY",
		"account_id": "SMARTSUITE_ACCOUNT_ID",
		"base_url":   "SMARTSUITE_BASE_URL",
		"timezone":   "SMARTSUITE_TIMEZONE",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// HasUpstream reports whether enough credentials are present to build
// the upstream client.
func (c *Config) HasUpstream() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.AccountID) != ""
}
