// Package config loads aide settings from defaults, a TOML file, AIDE_*
// environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"github.com/Ashwinachu030493/AIde/internal/wsconn"
)

// EnvPrefix is the prefix for environment overrides, e.g. AIDE_SERVER_URL.
const EnvPrefix = "AIDE"

// Wire formats for outbound chat frames.
const (
	WireJSON = "json"
	WireText = "text"
)

// Transports.
const (
	TransportCoder   = "coder"
	TransportGorilla = "gorilla"
)

// Config holds all aide configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" split_words:"true"`
	Connection ConnectionConfig `toml:"connection" split_words:"true"`
	Log        LogConfig        `toml:"log" split_words:"true"`
	History    HistoryConfig    `toml:"history" split_words:"true"`
	Metrics    MetricsConfig    `toml:"metrics" split_words:"true"`
	Health     HealthConfig     `toml:"health" split_words:"true"`
}

// ServerConfig identifies the chat server and conversation.
type ServerConfig struct {
	URL          string `toml:"url" split_words:"true"`
	Conversation string `toml:"conversation" split_words:"true"`
	WireFormat   string `toml:"wire_format" split_words:"true"`
	ProjectID    string `toml:"project_id" split_words:"true"`
}

// ConnectionConfig controls the WebSocket connection and reconnection.
type ConnectionConfig struct {
	Transport      string        `toml:"transport" split_words:"true"`
	AttemptLimit   int           `toml:"attempt_limit" split_words:"true"`
	BaseDelay      time.Duration `toml:"base_delay" split_words:"true"`
	MaxDelay       time.Duration `toml:"max_delay" split_words:"true"`
	MaxJitter      time.Duration `toml:"max_jitter" split_words:"true"`
	ConnectTimeout time.Duration `toml:"connect_timeout" split_words:"true"`
	WriteTimeout   time.Duration `toml:"write_timeout" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" split_words:"true"`
	Development bool   `toml:"development" split_words:"true"`
	File        string `toml:"file" split_words:"true"`
}

// HistoryConfig controls the local transcript store.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" split_words:"true"`
	Path    string `toml:"path" split_words:"true"`
	Limit   int    `toml:"limit" split_words:"true"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr" split_words:"true"`
}

// HealthConfig controls the server health check.
type HealthConfig struct {
	OnStart  bool          `toml:"on_start" split_words:"true"`
	Timeout  time.Duration `toml:"timeout" split_words:"true"`
	Retries  int           `toml:"retries" split_words:"true"`
	Interval time.Duration `toml:"interval" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	ws := wsconn.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			URL:          "ws://localhost:8000",
			Conversation: wsconn.DefaultConversation,
			WireFormat:   WireJSON,
		},
		Connection: ConnectionConfig{
			Transport:      TransportCoder,
			AttemptLimit:   ws.AttemptLimit,
			BaseDelay:      ws.BaseDelay,
			MaxDelay:       ws.MaxDelay,
			MaxJitter:      ws.MaxJitter,
			ConnectTimeout: ws.ConnectTimeout,
			WriteTimeout:   ws.WriteTimeout,
		},
		Log: LogConfig{
			Level: "warn",
		},
		History: HistoryConfig{
			Enabled: true,
			Limit:   200,
		},
		Health: HealthConfig{
			OnStart:  true,
			Timeout:  5 * time.Second,
			Retries:  2,
			Interval: 5 * time.Second,
		},
	}
}

// Dir returns the aide configuration directory (~/.aide).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".aide"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load builds the configuration: defaults, then the TOML file at path if it
// exists, then environment overrides. An empty path uses DefaultPath.
// The result is not validated; flags may still change it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := LoadFile(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes the TOML file at path over cfg.
func LoadFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides cfg from AIDE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	return nil
}

// Save writes cfg as TOML with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Flag names understood by ApplyFlags.
const (
	FlagServer         = "server"
	FlagConversation   = "conversation"
	FlagWireFormat     = "wire-format"
	FlagTransport      = "transport"
	FlagAttempts       = "attempts"
	FlagConnectTimeout = "connect-timeout"
	FlagLogLevel       = "log-level"
	FlagLogFile        = "log-file"
	FlagHistory        = "history"
	FlagMetricsAddr    = "metrics-addr"
	FlagHealthCheck    = "health-check"
)

// RegisterFlags adds the override flags to fs with built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagServer, d.Server.URL, "Chat server base URL (ws:// or wss://)")
	fs.String(FlagConversation, d.Server.Conversation, "Conversation id")
	fs.String(FlagWireFormat, d.Server.WireFormat, "Outbound frame format: json or text")
	fs.String(FlagTransport, d.Connection.Transport, "WebSocket library: coder or gorilla")
	fs.Int(FlagAttempts, d.Connection.AttemptLimit, "Reconnect attempts before giving up")
	fs.Duration(FlagConnectTimeout, d.Connection.ConnectTimeout, "Timeout for a single connection attempt")
	fs.String(FlagLogLevel, d.Log.Level, "Log level: debug, info, warn, error")
	fs.String(FlagLogFile, d.Log.File, "Write logs to this file instead of stderr")
	fs.Bool(FlagHistory, d.History.Enabled, "Record the conversation locally")
	fs.String(FlagMetricsAddr, d.Metrics.Addr, "Serve Prometheus metrics on this address")
	fs.Bool(FlagHealthCheck, d.Health.OnStart, "Check server health before connecting")
}

// ApplyFlags copies every flag the user set on fs into cfg.
// Flags left at their default do not override file or environment values.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagServer:
			cfg.Server.URL, err = fs.GetString(f.Name)
		case FlagConversation:
			cfg.Server.Conversation, err = fs.GetString(f.Name)
		case FlagWireFormat:
			cfg.Server.WireFormat, err = fs.GetString(f.Name)
		case FlagTransport:
			cfg.Connection.Transport, err = fs.GetString(f.Name)
		case FlagAttempts:
			cfg.Connection.AttemptLimit, err = fs.GetInt(f.Name)
		case FlagConnectTimeout:
			cfg.Connection.ConnectTimeout, err = fs.GetDuration(f.Name)
		case FlagLogLevel:
			cfg.Log.Level, err = fs.GetString(f.Name)
		case FlagLogFile:
			cfg.Log.File, err = fs.GetString(f.Name)
		case FlagHistory:
			cfg.History.Enabled, err = fs.GetBool(f.Name)
		case FlagMetricsAddr:
			cfg.Metrics.Addr, err = fs.GetString(f.Name)
		case FlagHealthCheck:
			cfg.Health.OnStart, err = fs.GetBool(f.Name)
		}
	})
	return err
}

// WSConfig returns the connection manager configuration.
func (c *Config) WSConfig() wsconn.Config {
	return wsconn.Config{
		AttemptLimit:   c.Connection.AttemptLimit,
		BaseDelay:      c.Connection.BaseDelay,
		MaxDelay:       c.Connection.MaxDelay,
		MaxJitter:      c.Connection.MaxJitter,
		ConnectTimeout: c.Connection.ConnectTimeout,
		WriteTimeout:   c.Connection.WriteTimeout,
	}
}

// Endpoint returns the chat channel URL for the configured conversation.
func (c *Config) Endpoint() (string, error) {
	return wsconn.EndpointURL(c.Server.URL, c.Server.Conversation)
}

// HealthURL returns the HTTP base URL matching the WebSocket server URL.
func (c *Config) HealthURL() (string, error) {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// HistoryPath returns the transcript database path.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
