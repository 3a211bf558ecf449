package nodes

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

type intervalSettings struct {
	Every      int `mapstructure:"every"`
	MaxFirings int `mapstructure:"maxFirings"`
}

// intervalNode fires every N ticks, optionally a limited number of times.
// Each firing emits the tick count and its "value" input.
type intervalNode struct {
	*node.Base
	cfg     intervalSettings
	ticks   int
	firings int
}

func newInterval(id string, spec workflow.NodeSpec) node.Node {
	return &intervalNode{Base: node.NewBase(id, spec, node.ModeContinuous)}
}

func (n *intervalNode) Initialize(ctx context.Context, _ *workflow.Graph, _ map[string]node.Node) error {
	if err := decodeSettings(settings(ctx, n.Base), &n.cfg); err != nil {
		return err
	}
	if n.cfg.Every == 0 {
		n.cfg.Every = 1
	}
	if n.cfg.Every < 0 || n.cfg.MaxFirings < 0 {
		return fmt.Errorf("%w: every and maxFirings must not be negative", node.ErrConfiguration)
	}
	return nil
}

func (n *intervalNode) OnTick(_ context.Context, ec *node.Context) (node.Outputs, error) {
	n.ticks++
	if n.ticks%n.cfg.Every != 0 {
		return nil, nil
	}
	if n.cfg.MaxFirings > 0 && n.firings >= n.cfg.MaxFirings {
		return nil, nil
	}
	n.firings++
	return n.outputs(ec), nil
}

// Execute reports the current counters without firing.
func (n *intervalNode) Execute(_ context.Context, ec *node.Context) (node.Outputs, error) {
	return n.outputs(ec), nil
}

func (n *intervalNode) outputs(ec *node.Context) node.Outputs {
	return node.Outputs{
		"tick":    n.ticks,
		"firings": n.firings,
		"value":   n.Input("value", ec, nil),
		"firedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// manualTriggerNode fires once per external trigger, emitting its "payload"
// input.
type manualTriggerNode struct {
	*node.Base
	count atomic.Int64
}

func newManualTrigger(id string, spec workflow.NodeSpec) node.Node {
	return &manualTriggerNode{Base: node.NewBase(id, spec, node.ModeTriggered)}
}

func (n *manualTriggerNode) Execute(_ context.Context, ec *node.Context) (node.Outputs, error) {
	return node.Outputs{
		"triggered":   true,
		"count":       n.count.Add(1),
		"payload":     n.Input("payload", ec, nil),
		"triggeredAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
