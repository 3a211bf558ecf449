// Package node defines the contract every workflow node type satisfies, the
// per-run execution context nodes read from, and the registry mapping type
// names to constructors.
package node

import (
	"context"
	"fmt"

	"nodeflow/services/workflow"
)

// ExecutionMode is static per node type and decides how the engine drives a node.
type ExecutionMode int

const (
	// ModeOnce nodes run in dependency order during a pass.
	ModeOnce ExecutionMode = iota
	// ModeContinuous nodes are polled through OnTick on every tick.
	ModeContinuous
	// ModeTriggered nodes execute on a tick only after SetTriggered armed them.
	ModeTriggered
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeOnce:
		return "once"
	case ModeContinuous:
		return "continuous"
	case ModeTriggered:
		return "triggered"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText renders the mode by name in JSON documents.
func (m ExecutionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name.
func (m *ExecutionMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "once":
		*m = ModeOnce
	case "continuous":
		*m = ModeContinuous
	case "triggered":
		*m = ModeTriggered
	default:
		return fmt.Errorf("%w: unknown execution mode %q", ErrConfiguration, text)
	}
	return nil
}

// Outputs maps output names to values produced by one node execution.
type Outputs map[string]any

// InputRef points an input at one output of an upstream node.
type InputRef struct {
	NodeID     string `json:"nodeId"`
	OutputName string `json:"outputName"`
}

// Node is the computation unit driven by the engine.
//
// Execute is the primary hook for once-mode nodes and single triggered
// firings. The engine never calls two hooks of the same run concurrently.
type Node interface {
	ID() string
	Type() string
	Mode() ExecutionMode
	Metadata() map[string]any

	// Connect appends an upstream reference for the named input. Insertion
	// order is preserved; the first reference wins during resolution.
	Connect(input string, ref InputRef)
	InputConnections() map[string][]InputRef

	// Initialize runs once after every node of the run exists.
	Initialize(ctx context.Context, g *workflow.Graph, all map[string]Node) error
	Execute(ctx context.Context, ec *Context) (Outputs, error)
	// Dispose releases scoped resources. It is called exactly once per run.
	Dispose() error
}

// Ticker is implemented by continuous nodes. A nil result means nothing
// happened this tick; any non-nil result is a firing.
type Ticker interface {
	OnTick(ctx context.Context, ec *Context) (Outputs, error)
}

// Triggerable is an edge-triggered latch armed by external events.
type Triggerable interface {
	SetTriggered()
	CheckAndClearTrigger() bool
}

// Constructor builds a node instance from its declaration.
type Constructor func(id string, spec workflow.NodeSpec) Node
