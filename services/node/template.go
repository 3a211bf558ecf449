package node

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	wholeTemplate   = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}$`)
	partialTemplate = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)
)

// ResolveTemplate substitutes {{name}} references in v with values from vars.
//
// A string that is exactly one reference yields the raw variable value, so
// numbers and maps keep their type. References inside a longer string are
// stringified. Unknown references are left in place as literal text. Maps and
// slices are resolved recursively into new values; v itself is not modified.
func ResolveTemplate(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return resolveString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ResolveTemplate(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveTemplate(item, vars)
		}
		return out
	default:
		return v
	}
}

// RenderTemplate always returns a string, stringifying every reference.
func RenderTemplate(s string, vars map[string]any) string {
	return partialTemplate.ReplaceAllStringFunc(s, func(match string) string {
		name := partialTemplate.FindStringSubmatch(match)[1]
		val, ok := lookupPath(vars, name)
		if !ok {
			return match
		}
		return Stringify(val)
	})
}

func resolveString(s string, vars map[string]any) any {
	if !strings.Contains(s, "{{") {
		return s
	}
	if m := wholeTemplate.FindStringSubmatch(s); m != nil {
		if val, ok := lookupPath(vars, m[1]); ok {
			return val
		}
		return s
	}
	return RenderTemplate(s, vars)
}

// lookupPath finds name in vars, first as a literal key and then as a dotted
// path through nested maps.
func lookupPath(vars map[string]any, name string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if v, ok := vars[name]; ok {
		return v, true
	}

	parts := strings.Split(name, ".")
	var cur any = vars
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a value for embedding in text. nil renders empty, maps
// and slices render as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any, Outputs:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
