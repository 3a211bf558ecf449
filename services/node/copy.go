package node

// deepCopyMap copies the JSON-shaped values found in workflow documents.
// Values of other types are shared.
func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Outputs:
		return Outputs(deepCopyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = deepCopyMap(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
