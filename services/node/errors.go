package node

import "errors"

// Error taxonomy. Concrete errors wrap one of these so callers can classify
// them with errors.Is.
var (
	// ErrConfiguration marks problems found before any node runs: unknown
	// node types, cycles, malformed connections.
	ErrConfiguration = errors.New("configuration error")
	// ErrNodeExecution marks a node hook that returned an error or panicked.
	ErrNodeExecution = errors.New("node execution error")
	// ErrResource marks a failing external collaborator such as storage.
	ErrResource = errors.New("resource error")
	// ErrFatal aborts the whole run.
	ErrFatal = errors.New("fatal engine error")
)
