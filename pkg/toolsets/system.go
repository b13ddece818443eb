package toolsets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SystemName is the registry key for the built-in system toolset.
const SystemName = "system"

// RegisterSystem adds the built-in system toolset: small host-introspection
// tools useful for smoke-testing a pool without any external server binary.
func RegisterSystem(r *Registry) {
	r.Register(SystemName, NewSystemServer)
}

// CurrentTimeInput selects the output format of the current_time tool.
type CurrentTimeInput struct {
	Format string `json:"format,omitempty" jsonschema:"Go time layout to format with; defaults to RFC3339"`
}

// GetEnvInput names the environment variable to read.
type GetEnvInput struct {
	Name string `json:"name" jsonschema:"The environment variable name to look up"`
}

// NewSystemServer builds a fresh server exposing the system tools.
func NewSystemServer() (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "system-toolset",
		Version: "1.0.0",
	}, nil)

	timeSchema, err := jsonschema.For[CurrentTimeInput](nil)
	if err != nil {
		return nil, fmt.Errorf("current_time schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "current_time",
		Description: "Return the current time, optionally formatted with a Go time layout.",
		InputSchema: timeSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in CurrentTimeInput) (*mcp.CallToolResult, any, error) {
		layout := in.Format
		if layout == "" {
			layout = time.RFC3339
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: time.Now().Format(layout)}},
		}, nil, nil
	})

	envSchema, err := jsonschema.For[GetEnvInput](nil)
	if err != nil {
		return nil, fmt.Errorf("get_env schema: %w", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_env",
		Description: "Read an environment variable from the host process.",
		InputSchema: envSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in GetEnvInput) (*mcp.CallToolResult, any, error) {
		value, ok := os.LookupEnv(in.Name)
		if !ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("environment variable %q is not set", in.Name)}},
				IsError: true,
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: value}},
		}, nil, nil
	})

	return server, nil
}
