package engine

import (
	"fmt"
	"strings"

	"nodeflow/services/node"
)

// UnknownNodeTypeError reports a node whose type has no registered constructor.
type UnknownNodeTypeError struct {
	NodeID string
	Type   string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("node %q: unknown node type %q", e.NodeID, e.Type)
}

func (e *UnknownNodeTypeError) Unwrap() error { return node.ErrConfiguration }

// DuplicateNodeError reports two declarations sharing one node id.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %q", e.NodeID)
}

func (e *DuplicateNodeError) Unwrap() error { return node.ErrConfiguration }

// ConnectionError reports a malformed connection or one naming an unknown node.
type ConnectionError struct {
	Index  int
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %d: %s", e.Index, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return node.ErrConfiguration }

// CycleError reports the nodes forming a dependency cycle.
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between nodes: %s", strings.Join(e.NodeIDs, " -> "))
}

func (e *CycleError) Unwrap() error { return node.ErrConfiguration }

// NodeError records a failed node hook.
type NodeError struct {
	NodeID   string
	NodeType string
	Phase    string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q (%s) %s: %v", e.NodeID, e.NodeType, e.Phase, e.Err)
}

// Is classifies every NodeError as a node execution error; Unwrap exposes the cause.
func (e *NodeError) Is(target error) bool { return target == node.ErrNodeExecution }

func (e *NodeError) Unwrap() error { return e.Err }
