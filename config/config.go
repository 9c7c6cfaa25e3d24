package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ClientConfig struct {
	Host              string        `yaml:"host"`
	Secure            bool          `yaml:"secure"`
	Path              string        `yaml:"path"`
	Subprotocol       string        `yaml:"subprotocol"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type ServerConfig struct {
	Addr          string            `yaml:"addr"`
	IdleTimeout   time.Duration     `yaml:"idle_timeout"`
	TokenFile     string            `yaml:"token_file"`
	TokenTTL      time.Duration     `yaml:"token_ttl"`
	SingleSession bool              `yaml:"single_session"`
	Secret        string            `yaml:"secret"`
	Operators     map[string]string `yaml:"operators"` // username -> bcrypt hash
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Host:              "127.0.0.1:8080",
			Path:              "/ws/events",
			Subprotocol:       "binary",
			RetryDelay:        2 * time.Second,
			HeartbeatInterval: 3 * time.Second,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			IdleTimeout:   10 * time.Second,
			TokenTTL:      2 * time.Hour,
			SingleSession: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the channel cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Client.Host == "":
		return fmt.Errorf("%w: client.host is empty", ErrInvalid)
	case c.Client.RetryDelay <= 0:
		return fmt.Errorf("%w: client.retry_delay must be positive", ErrInvalid)
	case c.Client.HeartbeatInterval <= 0:
		return fmt.Errorf("%w: client.heartbeat_interval must be positive", ErrInvalid)
	case c.Server.IdleTimeout <= 0:
		return fmt.Errorf("%w: server.idle_timeout must be positive", ErrInvalid)
	case c.Server.TokenTTL <= 0:
		return fmt.Errorf("%w: server.token_ttl must be positive", ErrInvalid)
	case c.Client.HeartbeatInterval >= c.Server.IdleTimeout:
		return fmt.Errorf("%w: heartbeat_interval %v must be shorter than idle_timeout %v",
			ErrInvalid, c.Client.HeartbeatInterval, c.Server.IdleTimeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// NewLogger builds the slog logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalid, s)
	}
}
