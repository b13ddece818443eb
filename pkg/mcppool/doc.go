// Package mcppool manages a pool of Model Context Protocol (MCP) servers
// from a single Go process. It layers a persistent server registry, a
// timeout-bounded connection lifecycle, audited tool invocation, and event
// fan-out on top of the modelcontextprotocol/go-sdk client so callers can
// focus on consuming tools instead of rebuilding MCP plumbing.
//
// # Core entry points
//
//   - Manager is the long-lived orchestration type. Construct it with
//     NewManager, then drive the lifecycle with Connect / Disconnect or use
//     AutoConnect to bring up every eligible server in one bounded batch.
//   - ServerSpec declares how each server is identified and launched, either
//     as a stdio subprocess or as a registered in-process toolset served
//     over an in-memory transport.
//   - Settings bound every operation: an overall connect budget with nested
//     handshake and tool-listing deadlines, a per-call tool timeout, and the
//     global auto-connect deadline and concurrency cap.
//
// Once connected, CallTool invokes a named tool and records the attempt in
// the invocation history available through History. Lifecycle and call
// observers register handlers with Subscribe; delivery is synchronous and a
// panicking handler never affects the triggering operation. Attach a Store
// to persist the registry across restarts, and a Sink to mirror invocation
// records into durable storage.
package mcppool
