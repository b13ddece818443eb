package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpdemo/mcp-console/pkg/mcppool"
)

func validConfig() *Config {
	return &Config{
		StorePath:                 "/tmp/servers.json",
		LogLevel:                  "info",
		ConnectTimeoutSeconds:     30,
		InitTimeoutSeconds:        15,
		ListToolsTimeoutSeconds:   10,
		ToolTimeoutSeconds:        60,
		AutoConnectTimeoutSeconds: 60,
		MaxConcurrentConnects:     5,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_BadLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestValidate_BadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.ToolTimeoutSeconds = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)

	cfg = validConfig()
	cfg.ConnectTimeoutSeconds = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)
}

func TestValidate_BadConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.MaxConcurrentConnects = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)

	cfg.MaxConcurrentConnects = 500
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)
}

func TestLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
	}
	for in, want := range cases {
		cfg := &Config{LogLevel: in}
		got, err := cfg.Level()
		require.NoError(t, err, "level %q", in)
		assert.Equal(t, want, got, "level %q", in)
	}
}

func TestSettings(t *testing.T) {
	cfg := validConfig()
	cfg.ToolTimeoutSeconds = 2.5
	cfg.CallRateLimit = 10
	cfg.CallBurst = 3

	settings := cfg.Settings()
	assert.Equal(t, 30*time.Second, settings.ConnectTimeout)
	assert.Equal(t, 2500*time.Millisecond, settings.ToolTimeout)
	assert.Equal(t, 5, settings.MaxConcurrentConnects)
	assert.Equal(t, 10.0, settings.CallRateLimit)
	assert.Equal(t, 3, settings.CallBurst)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MCPCONSOLE_LOG_LEVEL", "debug")
	t.Setenv("MCPCONSOLE_TOOL_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Settings().ToolTimeout)
	assert.Equal(t, mcppool.DefaultConnectTimeout, cfg.Settings().ConnectTimeout)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"system"}, cfg.Toolsets)
	assert.NotEmpty(t, cfg.StorePath)
	assert.Equal(t, mcppool.DefaultMaxConcurrent, cfg.MaxConcurrentConnects)
}
