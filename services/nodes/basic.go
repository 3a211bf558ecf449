package nodes

import (
	"context"
	"log/slog"
	"strings"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

// constantNode emits its "value" input, template-resolved against the run
// variables.
type constantNode struct {
	*node.Base
}

func newConstant(id string, spec workflow.NodeSpec) node.Node {
	return &constantNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *constantNode) Execute(_ context.Context, ec *node.Context) (node.Outputs, error) {
	return node.Outputs{"value": n.Input("value", ec, nil)}, nil
}

// templateNode renders its "template" setting. The template sees the run
// variables overlaid with every wired input, so "{{temperature}}" can name an
// upstream output connected to the "temperature" input.
type templateNode struct {
	*node.Base
}

func newTemplate(id string, spec workflow.NodeSpec) node.Node {
	return &templateNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *templateNode) Execute(_ context.Context, ec *node.Context) (node.Outputs, error) {
	scope := make(map[string]any, len(ec.Variables))
	for k, v := range ec.Variables {
		scope[k] = v
	}
	for name := range n.InputConnections() {
		if name == "template" {
			continue
		}
		if r := n.Resolve(name, ec, nil); !r.UsedDefault() {
			scope[name] = r.Value
		}
	}

	var text string
	if _, wired := n.InputConnections()["template"]; wired {
		text = n.InputString("template", ec, "")
	} else if raw, ok := n.StaticInputs()["template"].(string); ok {
		text = raw
	} else if raw, ok := n.Metadata()["template"].(string); ok {
		text = raw
	}

	return node.Outputs{"text": node.RenderTemplate(text, scope)}, nil
}

// logNode writes its "message" input to the run log. A wired "when" input
// gates it: the message is only logged when the gate is truthy.
type logNode struct {
	*node.Base
}

func newLog(id string, spec workflow.NodeSpec) node.Node {
	return &logNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *logNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	if !truthy(n.Input("when", ec, true)) {
		return node.Outputs{"logged": false}, nil
	}

	msg := n.InputString("message", ec, "")
	level := slog.LevelInfo
	switch strings.ToLower(n.InputString("level", ec, "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	ec.Logger.Log(ctx, level, msg, "node_id", n.ID(), "node_type", n.Type())

	return node.Outputs{"logged": true, "message": msg}, nil
}
