package mcppool

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DialFunc produces the transport used to reach one server. The returned
// cleanup function, when non-nil, releases resources that outlive the client
// session (such as the serving side of an in-memory transport) and is called
// after the session closes. Overridable via Options.Dial for tests.
type DialFunc func(ctx context.Context, serverID string, spec ServerSpec) (mcp.Transport, func(), error)

func (m *Manager) dialTransport(ctx context.Context, serverID string, spec ServerSpec) (mcp.Transport, func(), error) {
	if m.opts.Dial != nil {
		return m.opts.Dial(ctx, serverID, spec)
	}
	if spec.Toolset != "" {
		return m.toolsetTransport(ctx, spec)
	}
	transport, err := stdioTransport(serverID, spec)
	if err != nil {
		return nil, nil, err
	}
	return transport, nil, nil
}

// stdioTransport builds the subprocess command with the descriptor's
// environment overrides merged on top of the parent environment.
func stdioTransport(serverID string, spec ServerSpec) (mcp.Transport, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("%w: command missing for %q", ErrInvalidSpec, serverID)
	}
	cmd := exec.Command(spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// toolsetTransport serves a registered in-process toolset over an in-memory
// transport pair and hands the client end back to the orchestrator.
func (m *Manager) toolsetTransport(ctx context.Context, spec ServerSpec) (mcp.Transport, func(), error) {
	if m.opts.Toolsets == nil {
		return nil, nil, fmt.Errorf("%w: toolset %q requested but no registry configured", ErrInvalidSpec, spec.Toolset)
	}
	server, err := m.opts.Toolsets.Build(spec.Toolset)
	if err != nil {
		return nil, nil, err
	}
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("serve toolset %q: %w", spec.Toolset, err)
	}
	return clientTransport, func() { _ = serverSession.Close() }, nil
}
