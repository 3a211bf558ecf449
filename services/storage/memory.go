// Package storage provides the storage handles nodes reach through their
// execution context, and the process-wide cache that shares one handle per
// (type, path) across runs.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process storage handle. Values are stored as JSON so
// callers never share maps with the store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	logs map[string][][]byte
}

// NewMemory returns an empty in-memory handle.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
		logs: make(map[string][][]byte),
	}
}

func (m *Memory) Save(_ context.Context, userID string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = b
	return nil
}

func (m *Memory) Get(_ context.Context, userID string) (map[string]any, error) {
	m.mu.RLock()
	b, ok := m.data[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeMap(b)
}

func (m *Memory) Log(_ context.Context, userID string, entry map[string]any) error {
	b, err := json.Marshal(stampEntry(entry))
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[userID] = append(m.logs[userID], b)
	return nil
}

func (m *Memory) Logs(_ context.Context, userID string, limit int) ([]map[string]any, error) {
	m.mu.RLock()
	raw := tail(m.logs[userID], limit)
	m.mu.RUnlock()
	return decodeEntries(raw)
}

func (m *Memory) Close() error { return nil }
