// ABOUTME: Configuration loading and parsing for the chatline client and dev backend
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/chatline/internal/chat"
)

// EnvPath names the environment variable that overrides the config location.
const EnvPath = "CHATLINE_CONFIG"

// Config represents the complete chatline configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	User    UserConfig    `yaml:"user" toml:"user"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig locates the chat server
type ServerConfig struct {
	URL      string `yaml:"url" toml:"url"`
	ChatPath string `yaml:"chat_path" toml:"chat_path"`
}

// UserConfig identifies the local user to the server
type UserConfig struct {
	Handle string `yaml:"handle" toml:"handle"`
	Token  string `yaml:"token" toml:"token"`
}

// SessionConfig holds client session tuning
type SessionConfig struct {
	HistoryLimit  int    `yaml:"history_limit" toml:"history_limit"`
	DedupeSize    int    `yaml:"dedupe_size" toml:"dedupe_size"`
	UntitledTitle string `yaml:"untitled_title" toml:"untitled_title"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	SendTimeout  time.Duration `yaml:"-" toml:"-"`
	ReadyTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DedupeTTLRaw    string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
	SendTimeoutRaw  string `yaml:"send_timeout" toml:"send_timeout"`
	ReadyTimeoutRaw string `yaml:"ready_timeout" toml:"ready_timeout"`
}

// BackendConfig holds settings for the development backend
type BackendConfig struct {
	Addr         string `yaml:"addr" toml:"addr"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`

	ChunkDelay    time.Duration `yaml:"-" toml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay" toml:"chunk_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	handle := os.Getenv("USER")
	if handle == "" {
		handle = "me"
	}
	return &Config{
		Server: ServerConfig{
			URL:      "http://127.0.0.1:8765",
			ChatPath: "/api/chat",
		},
		User: UserConfig{Handle: handle},
		Session: SessionConfig{
			HistoryLimit:    50,
			DedupeSize:      4096,
			UntitledTitle:   chat.UntitledTitle,
			DedupeTTL:       10 * time.Minute,
			SendTimeout:     10 * time.Second,
			ReadyTimeout:    5 * time.Second,
			DedupeTTLRaw:    "10m",
			SendTimeoutRaw:  "10s",
			ReadyTimeoutRaw: "5s",
		},
		Backend: BackendConfig{
			Addr:          "127.0.0.1:8765",
			DatabasePath:  "./chatline-backend.db",
			ChunkDelay:    30 * time.Millisecond,
			ChunkDelayRaw: "30ms",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Fields the
// file leaves out keep their Default values.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns the config location: $CHATLINE_CONFIG, then
// $XDG_CONFIG_HOME/chatline/config.yaml, then ~/.config/chatline/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatline", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "chatline", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatline", "config.yaml")
}

// LoadDefault loads the file at DefaultPath. A missing file yields Default,
// unless the path was named explicitly through $CHATLINE_CONFIG.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) && os.Getenv(EnvPath) == "" {
		return Default(), nil
	}
	return cfg, err
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url scheme must be http or https, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.Server.ChatPath, "/") {
		return fmt.Errorf("server.chat_path must start with /")
	}

	if c.User.Handle == "" {
		return fmt.Errorf("user.handle is required")
	}

	if c.Session.DedupeSize <= 0 {
		return fmt.Errorf("session.dedupe_size must be positive")
	}
	if c.Session.HistoryLimit < 0 {
		return fmt.Errorf("session.history_limit must not be negative")
	}
	if c.Session.UntitledTitle == "" {
		return fmt.Errorf("session.untitled_title is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// ChatURL returns the websocket URL of the chat channel.
func (s ServerConfig) ChatURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + s.ChatPath
	return u.String(), nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session.dedupe_ttl", cfg.Session.DedupeTTLRaw, &cfg.Session.DedupeTTL},
		{"session.send_timeout", cfg.Session.SendTimeoutRaw, &cfg.Session.SendTimeout},
		{"session.ready_timeout", cfg.Session.ReadyTimeoutRaw, &cfg.Session.ReadyTimeout},
		{"backend.chunk_delay", cfg.Backend.ChunkDelayRaw, &cfg.Backend.ChunkDelay},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
