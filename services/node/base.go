package node

import (
	"context"
	"sync/atomic"

	"nodeflow/services/workflow"
)

// Base carries the state shared by every node type. Node implementations
// embed *Base and add Execute (and OnTick for continuous nodes).
type Base struct {
	id          string
	nodeType    string
	mode        ExecutionMode
	inputs      map[string]any
	metadata    map[string]any
	connections map[string][]InputRef
	triggered   atomic.Bool
}

// NewBase snapshots the static inputs and metadata of spec so later edits to
// the graph never reach a running instance.
func NewBase(id string, spec workflow.NodeSpec, mode ExecutionMode) *Base {
	return &Base{
		id:          id,
		nodeType:    spec.Type,
		mode:        mode,
		inputs:      deepCopyMap(spec.Inputs),
		metadata:    deepCopyMap(spec.Metadata),
		connections: make(map[string][]InputRef),
	}
}

func (b *Base) ID() string               { return b.id }
func (b *Base) Type() string             { return b.nodeType }
func (b *Base) Mode() ExecutionMode      { return b.mode }
func (b *Base) Metadata() map[string]any { return b.metadata }

// StaticInputs returns the node's own configured inputs.
func (b *Base) StaticInputs() map[string]any { return b.inputs }

func (b *Base) Connect(input string, ref InputRef) {
	b.connections[input] = append(b.connections[input], ref)
}

func (b *Base) InputConnections() map[string][]InputRef { return b.connections }

// Initialize is a no-op by default.
func (b *Base) Initialize(context.Context, *workflow.Graph, map[string]Node) error { return nil }

// Dispose is a no-op by default.
func (b *Base) Dispose() error { return nil }

// SetTriggered arms the latch. Safe to call from any goroutine.
func (b *Base) SetTriggered() { b.triggered.Store(true) }

// CheckAndClearTrigger reports whether the latch was armed and clears it.
func (b *Base) CheckAndClearTrigger() bool { return b.triggered.CompareAndSwap(true, false) }

// Resolve looks up an input through the wiring, static, metadata, default
// waterfall and reports which tier supplied the value.
func (b *Base) Resolve(name string, ec *Context, def any) Resolution {
	var upstream, static, meta Candidate
	if refs := b.connections[name]; len(refs) > 0 {
		v, ok := ec.Output(refs[0].NodeID, refs[0].OutputName)
		upstream = Candidate{Value: v, OK: ok}
	}
	if v, ok := b.inputs[name]; ok {
		static = Candidate{Value: v, OK: true}
	}
	if v, ok := b.metadata[name]; ok {
		meta = Candidate{Value: v, OK: true}
	}
	return ResolveInput(upstream, static, meta, def, ec.Variables)
}

// Input returns the resolved value of the named input, or def.
func (b *Base) Input(name string, ec *Context, def any) any {
	return b.Resolve(name, ec, def).Value
}

// InputString resolves the named input and stringifies it.
func (b *Base) InputString(name string, ec *Context, def string) string {
	v := b.Input(name, ec, def)
	if v == nil {
		return def
	}
	return Stringify(v)
}

// Template resolves {{var}} references in v against the run variables.
func (b *Base) Template(v any, ec *Context) any {
	return ResolveTemplate(v, ec.Variables)
}
