// Package nodes holds the built-in node types.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"nodeflow/services/node"
)

// Deps are the external collaborators node types call into. A nil
// collaborator makes the nodes that need it report success:false.
type Deps struct {
	Weather WeatherClient
	LLM     ChatClient
	// LLMModel is used when a node does not name a model.
	LLMModel string
	Logger   *slog.Logger
}

// RegisterAll registers every built-in node type and alias with reg. Repeat
// calls are no-ops.
func RegisterAll(reg *node.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return reg.RegisterAll(func(r *node.Registry) error {
		defs := []node.Definition{
			{Type: "constant", Mode: node.ModeOnce, Description: "Emits a static or templated value", New: newConstant},
			{Type: "template", Mode: node.ModeOnce, Description: "Renders a text template over variables and wired inputs", New: newTemplate},
			{Type: "condition", Mode: node.ModeOnce, Description: "Compares a number against a threshold", New: newCondition},
			{Type: "log", Mode: node.ModeOnce, Description: "Writes a message to the run log", New: newLog},
			{Type: "weather", Mode: node.ModeOnce, Description: "Fetches the current temperature for a city", New: weatherConstructor(deps.Weather)},
			{Type: "llm", Mode: node.ModeOnce, Description: "Sends a prompt to a chat completion model", New: llmConstructor(deps.LLM, deps.LLMModel)},
			{Type: "storage_save", Mode: node.ModeOnce, Description: "Saves a document to run storage", New: newStorageSave},
			{Type: "storage_get", Mode: node.ModeOnce, Description: "Loads a document from run storage", New: newStorageGet},
			{Type: "storage_log", Mode: node.ModeOnce, Description: "Appends an entry to a storage log", New: newStorageLog},
			{Type: "interval", Mode: node.ModeContinuous, Description: "Fires every N ticks", New: newInterval},
			{Type: "manual_trigger", Mode: node.ModeTriggered, Description: "Fires once each time it is triggered", New: newManualTrigger},
		}
		for _, def := range defs {
			if err := r.Register(def); err != nil {
				return err
			}
		}

		aliases := map[string]string{
			"integration": "weather",
			"timer":       "interval",
			"webhook":     "manual_trigger",
		}
		for alias, target := range aliases {
			if err := r.Alias(alias, target); err != nil {
				return err
			}
		}
		deps.Logger.Debug("Registered built-in node types", "count", r.Len())
		return nil
	})
}

// settings merges metadata and static inputs, static inputs taking
// precedence, as the source for typed node settings. Templates resolve
// against the run variables carried by ctx.
func settings(ctx context.Context, b *node.Base) map[string]any {
	vars := node.VariablesFrom(ctx)
	out := make(map[string]any, len(b.Metadata())+len(b.StaticInputs()))
	for k, v := range b.Metadata() {
		out[k] = node.ResolveTemplate(v, vars)
	}
	for k, v := range b.StaticInputs() {
		out[k] = node.ResolveTemplate(v, vars)
	}
	return out
}

// decodeSettings decodes raw into out, accepting loosely typed values such as
// numbers written as strings.
func decodeSettings(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", node.ErrConfiguration, err)
	}
	return nil
}

// failure is the output of a node that hit an expected failure.
func failure(err error) node.Outputs {
	return node.Outputs{"success": false, "error": err.Error()}
}

// toFloat64 converts a loosely typed number to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// truthy interprets a gate input.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		f, ok := toFloat64(v)
		return ok && f != 0
	}
}
