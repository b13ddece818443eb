package mcppool

import (
	"fmt"
	"time"
)

// Status represents the lifecycle of a pooled server.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// ServerSpec declares how a pooled MCP server is identified and launched.
// Specs are plain data: they are persisted to the config store and carry no
// live connection state.
type ServerSpec struct {
	// Name is the human-readable server name shown in listings and events.
	Name        string
	Description string
	// Command and Args launch the server subprocess over stdio.
	Command string
	Args    []string
	// Env overrides are merged on top of the parent process environment.
	Env map[string]string
	// Enabled gates the server out of auto-connect without removing it.
	Enabled bool
	// AutoConnect marks the server for bulk connection at startup.
	AutoConnect bool
	Category    string
	// Toolset names a registered in-process toolset served over an
	// in-memory transport instead of spawning Command. Exactly one of
	// Command and Toolset must be set.
	Toolset string
}

func (s ServerSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if s.Command == "" && s.Toolset == "" {
		return fmt.Errorf("%w: either command or toolset is required", ErrInvalidSpec)
	}
	if s.Command != "" && s.Toolset != "" {
		return fmt.Errorf("%w: command and toolset are mutually exclusive", ErrInvalidSpec)
	}
	return nil
}

func (s ServerSpec) clone() ServerSpec {
	out := s
	if s.Args != nil {
		out.Args = append([]string(nil), s.Args...)
	}
	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = v
		}
	}
	return out
}

// ServerUpdate is a merge patch for an existing spec. Nil fields leave the
// current value untouched.
type ServerUpdate struct {
	Name        *string
	Description *string
	Command     *string
	Args        []string
	Env         map[string]string
	Enabled     *bool
	AutoConnect *bool
	Category    *string
	Toolset     *string
}

func (u ServerUpdate) apply(spec *ServerSpec) {
	if u.Name != nil {
		spec.Name = *u.Name
	}
	if u.Description != nil {
		spec.Description = *u.Description
	}
	if u.Command != nil {
		spec.Command = *u.Command
	}
	if u.Args != nil {
		spec.Args = append([]string(nil), u.Args...)
	}
	if u.Env != nil {
		env := make(map[string]string, len(u.Env))
		for k, v := range u.Env {
			env[k] = v
		}
		spec.Env = env
	}
	if u.Enabled != nil {
		spec.Enabled = *u.Enabled
	}
	if u.AutoConnect != nil {
		spec.AutoConnect = *u.AutoConnect
	}
	if u.Category != nil {
		spec.Category = *u.Category
	}
	if u.Toolset != nil {
		spec.Toolset = *u.Toolset
	}
}

// Settings bound every pool operation. The zero value is usable; missing
// fields fall back to the defaults below.
type Settings struct {
	// ConnectTimeout is the overall budget for one connect attempt,
	// covering transport launch, handshake, and tool listing.
	ConnectTimeout time.Duration
	// InitTimeout bounds the initialize handshake, nested inside
	// ConnectTimeout.
	InitTimeout time.Duration
	// ListToolsTimeout bounds the post-handshake tool enumeration.
	ListToolsTimeout time.Duration
	// ToolTimeout is the default budget for a single tool call.
	ToolTimeout time.Duration
	// AutoConnectTimeout is the global deadline across one AutoConnect
	// batch, distinct from each server's own ConnectTimeout.
	AutoConnectTimeout time.Duration
	// MaxConcurrentConnects caps the AutoConnect fan-out.
	MaxConcurrentConnects int
	// CallRateLimit throttles tool calls across the whole pool, in calls
	// per second. Zero disables throttling.
	CallRateLimit float64
	// CallBurst is the limiter burst size when CallRateLimit is set.
	CallBurst int
}

// Default timeouts match the persisted settings block the manager writes.
const (
	DefaultConnectTimeout     = 30 * time.Second
	DefaultInitTimeout        = 15 * time.Second
	DefaultListToolsTimeout   = 10 * time.Second
	DefaultToolTimeout        = 60 * time.Second
	DefaultAutoConnectTimeout = 60 * time.Second
	DefaultMaxConcurrent      = 5
)

func (s Settings) withDefaults() Settings {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.InitTimeout <= 0 {
		s.InitTimeout = DefaultInitTimeout
	}
	if s.ListToolsTimeout <= 0 {
		s.ListToolsTimeout = DefaultListToolsTimeout
	}
	if s.ToolTimeout <= 0 {
		s.ToolTimeout = DefaultToolTimeout
	}
	if s.AutoConnectTimeout <= 0 {
		s.AutoConnectTimeout = DefaultAutoConnectTimeout
	}
	if s.MaxConcurrentConnects <= 0 {
		s.MaxConcurrentConnects = DefaultMaxConcurrent
	}
	if s.CallRateLimit > 0 && s.CallBurst <= 0 {
		s.CallBurst = 1
	}
	return s
}

// ToolInfo is one cached capability descriptor from a connected server.
// InputSchema is the schema as the server declared it, kept opaque.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema any
}

// ToolRef ties a tool to the server that exposes it, for pool-wide listings.
type ToolRef struct {
	ServerID   string
	ServerName string
	Tool       ToolInfo
}

// ServerView is a point-in-time snapshot of one registry entry. Mutating a
// view never affects the registry.
type ServerView struct {
	ID   string
	Spec ServerSpec
	// Status is the entry's lifecycle state at snapshot time.
	Status Status
	// LastError is set while Status is StatusError and retained until the
	// next successful connect.
	LastError string
	// ConnectedAt is non-zero exactly while Status is StatusConnected.
	ConnectedAt time.Time
	// Tools is the capability cache; non-empty only while connected.
	Tools []ToolInfo
}

// StatusSummary aggregates entry counts per lifecycle state.
type StatusSummary struct {
	Total        int
	Connected    int
	Connecting   int
	Disconnected int
	Errored      int
}
