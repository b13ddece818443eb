// Package toolsets hosts in-process MCP servers that a pool can dial over
// an in-memory transport instead of spawning a subprocess. Each toolset is a
// named factory producing a fresh *mcp.Server per connection, so sessions
// never share server state.
package toolsets

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrUnknown reports a toolset name with no registered factory.
var ErrUnknown = errors.New("toolsets: unknown toolset")

// Factory builds one server instance for a new connection.
type Factory func() (*mcp.Server, error)

// Registry maps toolset names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a name to a factory, replacing any previous binding.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Build resolves name and constructs a fresh server.
func (r *Registry) Build(name string) (*mcp.Server, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return f()
}

// Names lists registered toolsets in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
