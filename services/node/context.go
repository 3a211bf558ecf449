package node

import (
	"context"
	"log/slog"
)

// Storage is the shared storage handle a run may expose to its nodes. Calls
// are keyed by user or session id. Implementations serialize their own writes.
type Storage interface {
	Save(ctx context.Context, userID string, data map[string]any) error
	// Get returns nil, nil when nothing is stored for userID.
	Get(ctx context.Context, userID string) (map[string]any, error)
	Log(ctx context.Context, userID string, entry map[string]any) error
	Logs(ctx context.Context, userID string, limit int) ([]map[string]any, error)
	Close() error
}

// Context is the mutable state of one run: variables seeded at start, the
// outputs accumulated so far, and an optional storage handle.
//
// Each output slot is written only by the engine on behalf of its owning
// node, and a run never executes two nodes at once, so no locking is needed.
type Context struct {
	RunID      string
	WorkflowID string
	Variables  map[string]any
	Logger     *slog.Logger

	outputs map[string]Outputs
	storage Storage
}

// NewContext seeds a context with a private copy of vars.
func NewContext(vars map[string]any, storage Storage) *Context {
	return &Context{
		Variables: deepCopyMap(vars),
		Logger:    slog.Default(),
		outputs:   make(map[string]Outputs),
		storage:   storage,
	}
}

// Output returns one output of a node. A missing node or output name reports
// false; an output that is present with a nil value reports true.
func (c *Context) Output(nodeID, name string) (any, bool) {
	out, ok := c.outputs[nodeID]
	if !ok {
		return nil, false
	}
	v, ok := out[name]
	return v, ok
}

// Outputs returns every output of a node.
func (c *Context) Outputs(nodeID string) (Outputs, bool) {
	out, ok := c.outputs[nodeID]
	return out, ok
}

// SetOutputs replaces the output slot of nodeID.
func (c *Context) SetOutputs(nodeID string, out Outputs) {
	if out == nil {
		out = Outputs{}
	}
	c.outputs[nodeID] = out
}

// ClearOutputs removes the output slot of nodeID so dependents see a miss.
func (c *Context) ClearOutputs(nodeID string) {
	delete(c.outputs, nodeID)
}

// Snapshot returns a deep copy of every node's outputs.
func (c *Context) Snapshot() map[string]Outputs {
	snap := make(map[string]Outputs, len(c.outputs))
	for id, out := range c.outputs {
		snap[id] = Outputs(deepCopyMap(out))
	}
	return snap
}

// Storage returns the run's storage handle, or nil when none is configured.
func (c *Context) Storage() Storage { return c.storage }

type variablesKey struct{}

// WithVariables returns a copy of ctx carrying the run variables. The engine
// hands it to Initialize, which has no Context yet.
func WithVariables(ctx context.Context, vars map[string]any) context.Context {
	return context.WithValue(ctx, variablesKey{}, vars)
}

// VariablesFrom returns the run variables carried by ctx, or nil.
func VariablesFrom(ctx context.Context) map[string]any {
	vars, _ := ctx.Value(variablesKey{}).(map[string]any)
	return vars
}
