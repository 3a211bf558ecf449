package engine

import (
	"fmt"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

// Built is the output of the graph builder: live node instances with their
// input connections wired, in declaration order.
type Built struct {
	Graph    *workflow.Graph
	Nodes    map[string]node.Node
	Declared []string
}

// Build instantiates every node of g and wires its connections. Unknown node
// types, duplicate ids and connections naming unknown nodes are rejected here
// so a run never starts with a broken graph.
func Build(registry *node.Registry, g *workflow.Graph) (*Built, error) {
	b := &Built{
		Graph:    g,
		Nodes:    make(map[string]node.Node, len(g.Nodes)),
		Declared: make([]string, 0, len(g.Nodes)),
	}

	for _, spec := range g.Nodes {
		if spec.ID == "" {
			return nil, fmt.Errorf("%w: node of type %q has no id", node.ErrConfiguration, spec.Type)
		}
		if _, dup := b.Nodes[spec.ID]; dup {
			return nil, &DuplicateNodeError{NodeID: spec.ID}
		}

		def, ok := registry.Lookup(spec.Type)
		if !ok {
			return nil, &UnknownNodeTypeError{NodeID: spec.ID, Type: spec.Type}
		}
		n := def.New(spec.ID, spec)
		if n == nil {
			return nil, fmt.Errorf("%w: constructor for %q returned no node", node.ErrConfiguration, spec.Type)
		}
		if n.Mode() != def.Mode {
			return nil, fmt.Errorf("%w: node %q of type %q runs in %s mode but is registered as %s",
				node.ErrConfiguration, spec.ID, spec.Type, n.Mode(), def.Mode)
		}

		b.Nodes[spec.ID] = n
		b.Declared = append(b.Declared, spec.ID)
	}

	for i, c := range g.Connections {
		if err := validateConnection(c, b.Nodes); err != nil {
			return nil, &ConnectionError{Index: i, Reason: err.Error()}
		}
		b.Nodes[c.TargetNode].Connect(c.TargetInput, node.InputRef{
			NodeID:     c.SourceNode,
			OutputName: c.SourceOutput,
		})
	}

	return b, nil
}

func validateConnection(c workflow.Connection, nodes map[string]node.Node) error {
	switch {
	case c.SourceNode == "" || c.TargetNode == "":
		return fmt.Errorf("source and target node are required")
	case c.SourceOutput == "" || c.TargetInput == "":
		return fmt.Errorf("source output and target input are required")
	}
	if _, ok := nodes[c.SourceNode]; !ok {
		return fmt.Errorf("unknown source node %q", c.SourceNode)
	}
	if _, ok := nodes[c.TargetNode]; !ok {
		return fmt.Errorf("unknown target node %q", c.TargetNode)
	}
	return nil
}

// Validate reports the configuration error Prepare would return for g,
// without creating a run. No node hook is called.
func Validate(registry *node.Registry, g *workflow.Graph) error {
	b, err := Build(registry, g)
	if err != nil {
		return err
	}
	_, err = planGraph(b)
	return err
}
