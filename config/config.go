// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Transports and stores accepted by Validate.
const (
	TransportStdio     = "stdio"
	TransportWebsocket = "websocket"

	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the full set of settings for the provider, host and CLI.
type Config struct {
	Transport     string `yaml:"transport" env:"MCP_TRANSPORT"`
	ServerCommand string `yaml:"server_command" env:"MCP_SERVER_COMMAND"`
	// ServerArgs is split on whitespace.
	ServerArgs string `yaml:"server_args" env:"MCP_SERVER_ARGS"`
	ServerURL  string `yaml:"server_url" env:"MCP_SERVER_URL"`

	UseMock      bool `yaml:"use_mock" env:"MCP_USE_MOCK"`
	MockFallback bool `yaml:"mock_fallback" env:"MCP_MOCK_FALLBACK"`

	CallTimeout time.Duration `yaml:"call_timeout" env:"MCP_CALL_TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MCP_MAX_RETRIES"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"MCP_RETRY_DELAY"`
	GracePeriod time.Duration `yaml:"grace_period" env:"MCP_GRACE_PERIOD"`

	HostAddr string `yaml:"host_addr" env:"HOST_ADDR"`

	TaskStore      string `yaml:"task_store" env:"TASK_STORE"`
	RedisAddr      string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisKeyPrefix string `yaml:"redis_key_prefix" env:"REDIS_KEY_PREFIX"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the settings used when neither file nor environment
// says otherwise.
func Default() Config {
	return Config{
		Transport:      TransportStdio,
		MockFallback:   true,
		CallTimeout:    30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		GracePeriod:    5 * time.Second,
		HostAddr:       ":8080",
		TaskStore:      StoreMemory,
		RedisAddr:      "localhost:6379",
		RedisKeyPrefix: "mcp:tasks:",
		SQLitePath:     "tasks.db",
		LogLevel:       "info",
	}
}

// Load applies the YAML file at path (if non-empty) over the defaults, then
// the environment over that, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects unknown enum values and settings that cannot work.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportWebsocket:
	default:
		return fmt.Errorf("transport must be %s or %s, got %q", TransportStdio, TransportWebsocket, c.Transport)
	}
	switch c.TaskStore {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required when task_store is sqlite")
		}
	default:
		return fmt.Errorf("task_store must be one of %s, %s, %s; got %q", StoreMemory, StoreRedis, StoreSQLite, c.TaskStore)
	}
	if c.CallTimeout <= 0 {
		return errors.New("call_timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("max_retries must be at least 1")
	}
	if c.RetryDelay < 0 || c.GracePeriod < 0 {
		return errors.New("retry_delay and grace_period cannot be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Args returns ServerArgs split on whitespace.
func (c *Config) Args() []string {
	return strings.Fields(c.ServerArgs)
}

// RequireProvider checks that the selected transport has a target.
func (c *Config) RequireProvider() error {
	switch c.Transport {
	case TransportStdio:
		if c.ServerCommand == "" {
			return errors.New("MCP_SERVER_COMMAND is required for the stdio transport")
		}
	case TransportWebsocket:
		if c.ServerURL == "" {
			return errors.New("MCP_SERVER_URL is required for the websocket transport")
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
