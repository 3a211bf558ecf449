package nodes

import (
	"context"
	"fmt"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

var errNoStorage = fmt.Errorf("no storage configured for this run")

// storageSaveNode saves its "data" input under "userId".
type storageSaveNode struct {
	*node.Base
}

func newStorageSave(id string, spec workflow.NodeSpec) node.Node {
	return &storageSaveNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *storageSaveNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	store := ec.Storage()
	if store == nil {
		return failure(errNoStorage), nil
	}
	userID := n.InputString("userId", ec, "")
	if userID == "" {
		return failure(fmt.Errorf("userId is required")), nil
	}
	data, ok := n.Input("data", ec, nil).(map[string]any)
	if !ok {
		return failure(fmt.Errorf("data must be an object")), nil
	}

	if err := store.Save(ctx, userID, data); err != nil {
		return failure(fmt.Errorf("%w: save: %v", node.ErrResource, err)), nil
	}
	return node.Outputs{"success": true, "userId": userID}, nil
}

// storageGetNode loads the document stored under "userId".
type storageGetNode struct {
	*node.Base
}

func newStorageGet(id string, spec workflow.NodeSpec) node.Node {
	return &storageGetNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *storageGetNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	store := ec.Storage()
	if store == nil {
		return failure(errNoStorage), nil
	}
	userID := n.InputString("userId", ec, "")
	if userID == "" {
		return failure(fmt.Errorf("userId is required")), nil
	}

	data, err := store.Get(ctx, userID)
	if err != nil {
		return failure(fmt.Errorf("%w: get: %v", node.ErrResource, err)), nil
	}
	return node.Outputs{"success": true, "found": data != nil, "data": data}, nil
}

// storageLogNode appends its "entry" input (or "message" as a one-field
// entry) to the log kept under "userId", and emits the most recent entries.
type storageLogNode struct {
	*node.Base
}

func newStorageLog(id string, spec workflow.NodeSpec) node.Node {
	return &storageLogNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *storageLogNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	store := ec.Storage()
	if store == nil {
		return failure(errNoStorage), nil
	}
	userID := n.InputString("userId", ec, "")
	if userID == "" {
		return failure(fmt.Errorf("userId is required")), nil
	}

	entry, ok := n.Input("entry", ec, nil).(map[string]any)
	if !ok {
		entry = map[string]any{"message": n.InputString("message", ec, "")}
	}
	if err := store.Log(ctx, userID, entry); err != nil {
		return failure(fmt.Errorf("%w: log: %v", node.ErrResource, err)), nil
	}

	limit, _ := toFloat64(n.Input("limit", ec, 10))
	recent, err := store.Logs(ctx, userID, int(limit))
	if err != nil {
		return failure(fmt.Errorf("%w: logs: %v", node.ErrResource, err)), nil
	}
	return node.Outputs{"success": true, "entries": recent}, nil
}
