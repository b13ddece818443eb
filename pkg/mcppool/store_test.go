package mcppool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "servers.json"))

	specs, settings, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, specs)
	assert.Zero(t, settings.ConnectTimeout)
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "servers.json")
	store := NewStore(path)

	in := map[string]ServerSpec{
		"id-1": {
			Name:        "files",
			Description: "filesystem server",
			Command:     "mcp-files",
			Args:        []string{"--root", "/data"},
			Env:         map[string]string{"TOKEN": "abc"},
			Enabled:     true,
			AutoConnect: true,
			Category:    "storage",
		},
		"id-2": {
			Name:    "builtin",
			Toolset: "system",
		},
	}
	settings := Settings{
		ConnectTimeout:        20 * time.Second,
		InitTimeout:           10 * time.Second,
		ListToolsTimeout:      5 * time.Second,
		ToolTimeout:           45 * time.Second,
		AutoConnectTimeout:    90 * time.Second,
		MaxConcurrentConnects: 3,
	}
	require.NoError(t, store.Save(in, settings))

	out, loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 20*time.Second, loaded.ConnectTimeout)
	assert.Equal(t, 45*time.Second, loaded.ToolTimeout)
	assert.Equal(t, 3, loaded.MaxConcurrentConnects)
}

func TestStore_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	store := NewStore(path)

	require.NoError(t, store.Save(map[string]ServerSpec{
		"id-1": {Name: "files", Command: "mcp-files", Env: map[string]string{"A": "1"}},
	}, Settings{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	servers, ok := doc["active_servers"].(map[string]any)
	require.True(t, ok)
	entry, ok := servers["id-1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "files", entry["name"])
	assert.Contains(t, entry, "env_vars")

	stored, ok := doc["settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 30.0, stored["connection_timeout"])
	assert.Equal(t, 60.0, stored["tool_timeout"])
	assert.Contains(t, stored, "updated_at")
}

func TestStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	store := NewStore(path)

	require.NoError(t, store.Save(map[string]ServerSpec{
		"a": {Name: "a", Command: "x"},
		"b": {Name: "b", Command: "y"},
	}, Settings{}))
	require.NoError(t, store.Save(map[string]ServerSpec{
		"a": {Name: "a", Command: "x"},
	}, Settings{}))

	specs, _, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, specs, 1)
	assert.Contains(t, specs, "a")
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := NewStore(path).Load()
	require.Error(t, err)
}

func TestManager_PersistsThroughStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	store := NewStore(path)

	m := newTestManager(t, nil, Options{Store: store})
	id, err := m.AddServer(ServerSpec{Name: "alpha", Command: "server-bin"})
	require.NoError(t, err)

	specs, _, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, specs, id)
	assert.Equal(t, "alpha", specs[id].Name)

	name := "beta"
	require.True(t, m.UpdateServer(id, ServerUpdate{Name: &name}))
	specs, _, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "beta", specs[id].Name)

	require.NoError(t, m.RemoveServer(context.Background(), id))
	specs, _, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, specs)
}
