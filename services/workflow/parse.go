package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a workflow document. JSON is detected by a leading '{';
// anything else is decoded as YAML.
func Parse(data []byte) (*Graph, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty workflow document")
	}
	if trimmed[0] == '{' {
		return ParseJSON(trimmed)
	}
	return ParseYAML(trimmed)
}

// ParseJSON decodes a JSON workflow document.
func ParseJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode workflow json: %w", err)
	}
	return &g, nil
}

// ParseYAML decodes a YAML workflow document.
func ParseYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode workflow yaml: %w", err)
	}
	return &g, nil
}

// LoadFile reads a workflow document from disk, choosing the decoder from
// the file extension and falling back to content sniffing.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	var g *Graph
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		g, err = ParseJSON(data)
	case ".yaml", ".yml":
		g, err = ParseYAML(data)
	default:
		g, err = Parse(data)
	}
	if err != nil {
		return nil, err
	}

	if g.ID == "" {
		g.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, nil
}
