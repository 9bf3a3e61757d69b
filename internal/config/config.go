// Package config loads the chatroom configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the relay.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	// ArchivePath is the SQLite history archive. Empty disables it.
	ArchivePath string        `yaml:"archive_path"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:3000"},
		Client: ClientConfig{
			ServerURL:   "ws://127.0.0.1:3000/api/ws",
			DialTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATROOM_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("CHATROOM_USERNAME"); v != "" {
		c.Client.Username = v
	}
	if v := os.Getenv("CHATROOM_PASSWORD"); v != "" {
		c.Client.Password = v
	}
	if v := os.Getenv("CHATROOM_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("CHATROOM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Server.Listen, err)
	}

	u, err := url.Parse(c.Client.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server url %q: scheme must be ws or wss", c.Client.ServerURL)
	}
	if c.Client.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must not be negative")
	}

	for _, l := range ValidLevels {
		if c.Log.Level == l {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (valid: %v)", c.Log.Level, ValidLevels)
}
