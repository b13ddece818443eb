package toolsets

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectSystem builds the system toolset server and an SDK client joined
// over in-memory transports. Both sessions are cleaned up via t.Cleanup.
func connectSystem(t *testing.T) *mcp.ClientSession {
	t.Helper()

	reg := New()
	RegisterSystem(reg)
	server, err := reg.Build(SystemName)
	require.NoError(t, err)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func TestRegistry_BuildUnknown(t *testing.T) {
	reg := New()
	_, err := reg.Build("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestRegistry_Names(t *testing.T) {
	reg := New()
	reg.Register("zeta", NewSystemServer)
	reg.Register("alpha", NewSystemServer)
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}

func TestSystemToolset_ListTools(t *testing.T) {
	session := connectSystem(t)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"current_time", "get_env"}, names)
}

func TestSystemToolset_CurrentTime(t *testing.T) {
	session := connectSystem(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "current_time",
		Arguments: map[string]any{"format": time.RFC3339},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, text.Text)
	assert.NoError(t, err)
}

func TestSystemToolset_GetEnv(t *testing.T) {
	t.Setenv("TOOLSET_TEST_VALUE", "hello")
	session := connectSystem(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_env",
		Arguments: map[string]any{"name": "TOOLSET_TEST_VALUE"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
}

func TestSystemToolset_GetEnvMissing(t *testing.T) {
	session := connectSystem(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_env",
		Arguments: map[string]any{"name": "TOOLSET_TEST_DEFINITELY_UNSET"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
