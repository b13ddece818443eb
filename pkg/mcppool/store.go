package mcppool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists the server registry and settings as a single JSON document.
// Saves are whole-file rewrites through a temp file and rename, so a crash
// mid-save never leaves a truncated config behind.
type Store struct {
	path string
}

// NewStore returns a store writing to path. The parent directory is created
// on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// On-disk layout. Timeout values are persisted as seconds for readability.
type storedConfig struct {
	ActiveServers map[string]storedServer `json:"active_servers"`
	Settings      storedSettings          `json:"settings"`
}

type storedServer struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	EnvVars     map[string]string `json:"env_vars,omitempty"`
	Enabled     bool              `json:"enabled"`
	AutoConnect bool              `json:"auto_connect"`
	Category    string            `json:"category,omitempty"`
	Toolset     string            `json:"toolset,omitempty"`
}

type storedSettings struct {
	ConnectTimeout        float64 `json:"connection_timeout"`
	InitTimeout           float64 `json:"session_init_timeout"`
	ListToolsTimeout      float64 `json:"list_tools_timeout"`
	ToolTimeout           float64 `json:"tool_timeout"`
	AutoConnectTimeout    float64 `json:"auto_connect_timeout"`
	MaxConcurrentConnects int     `json:"max_concurrent_connects"`
	CallRateLimit         float64 `json:"call_rate_limit,omitempty"`
	CallBurst             int     `json:"call_burst,omitempty"`
	UpdatedAt             string  `json:"updated_at"`
}

// Load reads the config file. A missing file is not an error; it returns an
// empty registry and zero settings so first runs start clean.
func (s *Store) Load() (map[string]ServerSpec, Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]ServerSpec{}, Settings{}, nil
	}
	if err != nil {
		return nil, Settings{}, fmt.Errorf("read config: %w", err)
	}

	var cfg storedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, Settings{}, fmt.Errorf("parse config %s: %w", s.path, err)
	}

	specs := make(map[string]ServerSpec, len(cfg.ActiveServers))
	for id, sv := range cfg.ActiveServers {
		specs[id] = ServerSpec{
			Name:        sv.Name,
			Description: sv.Description,
			Command:     sv.Command,
			Args:        sv.Args,
			Env:         sv.EnvVars,
			Enabled:     sv.Enabled,
			AutoConnect: sv.AutoConnect,
			Category:    sv.Category,
			Toolset:     sv.Toolset,
		}
	}
	return specs, settingsFromStored(cfg.Settings), nil
}

// Save rewrites the whole config atomically.
func (s *Store) Save(specs map[string]ServerSpec, settings Settings) error {
	cfg := storedConfig{
		ActiveServers: make(map[string]storedServer, len(specs)),
		Settings:      settingsToStored(settings),
	}
	for id, spec := range specs {
		cfg.ActiveServers[id] = storedServer{
			Name:        spec.Name,
			Description: spec.Description,
			Command:     spec.Command,
			Args:        spec.Args,
			EnvVars:     spec.Env,
			Enabled:     spec.Enabled,
			AutoConnect: spec.AutoConnect,
			Category:    spec.Category,
			Toolset:     spec.Toolset,
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func settingsFromStored(s storedSettings) Settings {
	return Settings{
		ConnectTimeout:        secondsToDuration(s.ConnectTimeout),
		InitTimeout:           secondsToDuration(s.InitTimeout),
		ListToolsTimeout:      secondsToDuration(s.ListToolsTimeout),
		ToolTimeout:           secondsToDuration(s.ToolTimeout),
		AutoConnectTimeout:    secondsToDuration(s.AutoConnectTimeout),
		MaxConcurrentConnects: s.MaxConcurrentConnects,
		CallRateLimit:         s.CallRateLimit,
		CallBurst:             s.CallBurst,
	}
}

func settingsToStored(s Settings) storedSettings {
	s = s.withDefaults()
	return storedSettings{
		ConnectTimeout:        s.ConnectTimeout.Seconds(),
		InitTimeout:           s.InitTimeout.Seconds(),
		ListToolsTimeout:      s.ListToolsTimeout.Seconds(),
		ToolTimeout:           s.ToolTimeout.Seconds(),
		AutoConnectTimeout:    s.AutoConnectTimeout.Seconds(),
		MaxConcurrentConnects: s.MaxConcurrentConnects,
		CallRateLimit:         s.CallRateLimit,
		CallBurst:             s.CallBurst,
		UpdatedAt:             time.Now().UTC().Format(time.RFC3339),
	}
}

func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
