package workflow

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Default port names used when a connection omits them.
const (
	DefaultOutput = "output"
	DefaultInput  = "input"
)

// Graph is a declarative workflow: typed nodes plus the connections wiring
// node outputs to node inputs. A Graph is treated as immutable once a run starts.
type Graph struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Nodes       []NodeSpec   `json:"nodes" yaml:"nodes"`
	Connections []Connection `json:"connections" yaml:"connections"`
	CreatedAt   time.Time    `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time    `json:"updatedAt" yaml:"-"`
}

// NodeSpec declares a single node: its type, static inputs and metadata.
type NodeSpec struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Inputs   map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Position Position       `json:"position" yaml:"position,omitempty"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Connection wires one node output to one node input.
type Connection struct {
	SourceNode   string `json:"source_node" yaml:"source_node"`
	SourceOutput string `json:"source_output" yaml:"source_output"`
	TargetNode   string `json:"target_node" yaml:"target_node"`
	TargetInput  string `json:"target_input" yaml:"target_input"`
}

// connectionDoc is the wire shape of a connection, including the legacy
// from/to aliases older editors still emit.
type connectionDoc struct {
	SourceNode   string `json:"source_node" yaml:"source_node"`
	SourceOutput string `json:"source_output" yaml:"source_output"`
	TargetNode   string `json:"target_node" yaml:"target_node"`
	TargetInput  string `json:"target_input" yaml:"target_input"`
	From         string `json:"from" yaml:"from"`
	To           string `json:"to" yaml:"to"`
	FromOutput   string `json:"from_output" yaml:"from_output"`
	ToInput      string `json:"to_input" yaml:"to_input"`
}

func (d connectionDoc) connection() Connection {
	c := Connection{
		SourceNode:   firstNonEmpty(d.SourceNode, d.From),
		SourceOutput: firstNonEmpty(d.SourceOutput, d.FromOutput, DefaultOutput),
		TargetNode:   firstNonEmpty(d.TargetNode, d.To),
		TargetInput:  firstNonEmpty(d.TargetInput, d.ToInput, DefaultInput),
	}
	return c
}

// UnmarshalJSON accepts both the current and the legacy from/to connection shape.
func (c *Connection) UnmarshalJSON(data []byte) error {
	var doc connectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*c = doc.connection()
	return nil
}

// UnmarshalYAML accepts both the current and the legacy from/to connection shape.
func (c *Connection) UnmarshalYAML(value *yaml.Node) error {
	var doc connectionDoc
	if err := value.Decode(&doc); err != nil {
		return err
	}
	*c = doc.connection()
	return nil
}

// Summary is the listing view of a stored workflow.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NodeCount int       `json:"nodeCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
