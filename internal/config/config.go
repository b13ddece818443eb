// Package config manages application configuration with multi-source
// priority: environment variables override the config file, which overrides
// built-in defaults. The config file lives at ~/.mcpconsole/config.yaml and
// is distinct from the server registry JSON, which the pool store owns.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

var (
	// ErrInvalidLogLevel indicates the log level string is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidTimeout indicates a timeout value is zero or negative.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidConcurrency indicates the connect concurrency cap is out of range.
	ErrInvalidConcurrency = errors.New("invalid max concurrent connects")
)

// Config stores application configuration.
type Config struct {
	// StorePath locates the server registry JSON file.
	StorePath string `mapstructure:"store_path"`

	// AuditDSN, when set, enables the PostgreSQL audit sink.
	AuditDSN string `mapstructure:"audit_dsn"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Toolsets lists built-in toolsets to register at startup.
	Toolsets []string `mapstructure:"toolsets"`

	ConnectTimeoutSeconds     float64 `mapstructure:"connect_timeout_seconds"`
	InitTimeoutSeconds        float64 `mapstructure:"init_timeout_seconds"`
	ListToolsTimeoutSeconds   float64 `mapstructure:"list_tools_timeout_seconds"`
	ToolTimeoutSeconds        float64 `mapstructure:"tool_timeout_seconds"`
	AutoConnectTimeoutSeconds float64 `mapstructure:"auto_connect_timeout_seconds"`
	MaxConcurrentConnects     int     `mapstructure:"max_concurrent_connects"`
	CallRateLimit             float64 `mapstructure:"call_rate_limit"`
	CallBurst                 int     `mapstructure:"call_burst"`
}

// Load reads configuration from ~/.mcpconsole/config.yaml, the current
// directory, and MCPCONSOLE_* environment variables. A missing config file
// is not an error.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".mcpconsole")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("MCPCONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("store_path", filepath.Join(configDir, "servers.json"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("toolsets", []string{"system"})

	v.SetDefault("connect_timeout_seconds", mcppool.DefaultConnectTimeout.Seconds())
	v.SetDefault("init_timeout_seconds", mcppool.DefaultInitTimeout.Seconds())
	v.SetDefault("list_tools_timeout_seconds", mcppool.DefaultListToolsTimeout.Seconds())
	v.SetDefault("tool_timeout_seconds", mcppool.DefaultToolTimeout.Seconds())
	v.SetDefault("auto_connect_timeout_seconds", mcppool.DefaultAutoConnectTimeout.Seconds())
	v.SetDefault("max_concurrent_connects", mcppool.DefaultMaxConcurrent)
	v.SetDefault("call_rate_limit", 0.0)
	v.SetDefault("call_burst", 0)
}

// Validate checks ranges fail-fast so a bad config never reaches the pool.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"connect_timeout_seconds":      c.ConnectTimeoutSeconds,
		"init_timeout_seconds":         c.InitTimeoutSeconds,
		"list_tools_timeout_seconds":   c.ListToolsTimeoutSeconds,
		"tool_timeout_seconds":         c.ToolTimeoutSeconds,
		"auto_connect_timeout_seconds": c.AutoConnectTimeoutSeconds,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidTimeout, name, v)
		}
	}
	if c.MaxConcurrentConnects < 1 || c.MaxConcurrentConnects > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidConcurrency, c.MaxConcurrentConnects)
	}
	return nil
}

// Level parses the configured log level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
}

// Settings converts the timeout configuration to pool settings.
func (c *Config) Settings() mcppool.Settings {
	return mcppool.Settings{
		ConnectTimeout:        secondsToDuration(c.ConnectTimeoutSeconds),
		InitTimeout:           secondsToDuration(c.InitTimeoutSeconds),
		ListToolsTimeout:      secondsToDuration(c.ListToolsTimeoutSeconds),
		ToolTimeout:           secondsToDuration(c.ToolTimeoutSeconds),
		AutoConnectTimeout:    secondsToDuration(c.AutoConnectTimeoutSeconds),
		MaxConcurrentConnects: c.MaxConcurrentConnects,
		CallRateLimit:         c.CallRateLimit,
		CallBurst:             c.CallBurst,
	}
}

func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
