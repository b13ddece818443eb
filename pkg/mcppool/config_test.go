package mcppool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerSpec_Validate(t *testing.T) {
	cases := []struct {
		name    string
		spec    ServerSpec
		wantErr bool
	}{
		{"command only", ServerSpec{Name: "a", Command: "bin"}, false},
		{"toolset only", ServerSpec{Name: "a", Toolset: "system"}, false},
		{"missing name", ServerSpec{Command: "bin"}, true},
		{"missing both", ServerSpec{Name: "a"}, true},
		{"both set", ServerSpec{Name: "a", Command: "bin", Toolset: "system"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.validate()
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidSpec)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestServerSpec_CloneIsolation(t *testing.T) {
	spec := ServerSpec{
		Name: "a",
		Args: []string{"--x"},
		Env:  map[string]string{"K": "v"},
	}
	clone := spec.clone()
	clone.Args[0] = "--y"
	clone.Env["K"] = "mutated"

	assert.Equal(t, "--x", spec.Args[0])
	assert.Equal(t, "v", spec.Env["K"])
}

func TestServerUpdate_Apply(t *testing.T) {
	spec := ServerSpec{
		Name:        "old",
		Description: "keep me",
		Command:     "bin",
		Enabled:     true,
	}

	name := "new"
	disabled := false
	ServerUpdate{Name: &name, Enabled: &disabled}.apply(&spec)

	assert.Equal(t, "new", spec.Name)
	assert.False(t, spec.Enabled)
	assert.Equal(t, "keep me", spec.Description)
	assert.Equal(t, "bin", spec.Command)
}

func TestSettings_WithDefaults(t *testing.T) {
	settings := Settings{}.withDefaults()
	assert.Equal(t, DefaultConnectTimeout, settings.ConnectTimeout)
	assert.Equal(t, DefaultInitTimeout, settings.InitTimeout)
	assert.Equal(t, DefaultListToolsTimeout, settings.ListToolsTimeout)
	assert.Equal(t, DefaultToolTimeout, settings.ToolTimeout)
	assert.Equal(t, DefaultAutoConnectTimeout, settings.AutoConnectTimeout)
	assert.Equal(t, DefaultMaxConcurrent, settings.MaxConcurrentConnects)

	custom := Settings{ConnectTimeout: time.Second, CallRateLimit: 5}.withDefaults()
	assert.Equal(t, time.Second, custom.ConnectTimeout)
	assert.Equal(t, DefaultInitTimeout, custom.InitTimeout)
	assert.Equal(t, 1, custom.CallBurst)
}
