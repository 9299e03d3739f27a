package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.daarion/config.toml.
type Config struct {
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Room      RoomConfig      `toml:"room"`
	Sync      SyncConfig      `toml:"sync"`
	Logging   LoggingConfig   `toml:"logging"`
}

// BootstrapConfig locates the bootstrap endpoint and the caller's token.
type BootstrapConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// RoomConfig selects the room and the initial history window.
type RoomConfig struct {
	Slug         string `toml:"slug"`
	HistoryLimit int    `toml:"history_limit"`
}

// SyncConfig controls reconnect behavior of the sync loop.
type SyncConfig struct {
	AutoReconnect bool `toml:"auto_reconnect"`
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultHistoryLimit is the initial history fetch size when unset.
const DefaultHistoryLimit = 50

// Load reads config from the given path, expanding ${VAR} environment
// references before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Room.HistoryLimit <= 0 {
		c.Room.HistoryLimit = DefaultHistoryLimit
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that required fields are present and well-formed. The
// token may legitimately be absent: the engine resolves to unauthenticated
// in that case instead of failing here.
func (c *Config) Validate() error {
	if c.Bootstrap.URL == "" {
		return fmt.Errorf("bootstrap.url is required")
	}
	u, err := url.Parse(c.Bootstrap.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("bootstrap.url %q is not a valid http(s) URL", c.Bootstrap.URL)
	}
	if c.Room.Slug == "" {
		return fmt.Errorf("room.slug is required")
	}
	return nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
