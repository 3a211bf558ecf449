package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

func decodeMap(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return out, nil
}

func decodeEntries(raw [][]byte) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(raw))
	for _, b := range raw {
		entry, err := decodeMap(b)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// stampEntry adds a timestamp unless the caller supplied one.
func stampEntry(entry map[string]any) map[string]any {
	out := make(map[string]any, len(entry)+1)
	for k, v := range entry {
		out[k] = v
	}
	if _, ok := out["timestamp"]; !ok {
		out["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return out
}

// tail returns the last limit items; limit <= 0 returns all of them.
func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return append([]T(nil), items...)
	}
	return append([]T(nil), items[len(items)-limit:]...)
}
