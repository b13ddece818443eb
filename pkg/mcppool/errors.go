package mcppool

import "errors"

// Sentinel errors returned by pool operations. Failures local to one server
// never escape as panics; callers branch with errors.Is.
var (
	// ErrUnknownServer reports an id with no registry entry.
	ErrUnknownServer = errors.New("mcppool: unknown server")

	// ErrInvalidSpec reports a descriptor that fails validation.
	ErrInvalidSpec = errors.New("mcppool: invalid server spec")

	// ErrTimeout marks failures caused by a deadline rather than the
	// transport itself. Wrapped errors carry the failing stage and budget.
	ErrTimeout = errors.New("mcppool: timeout")
)
