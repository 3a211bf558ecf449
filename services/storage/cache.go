package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"nodeflow/services/node"
)

// Supported handle types.
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeRedis  = "redis"
)

// Opener creates a handle for a path. The meaning of path depends on the
// handle type: a namespace for memory, a directory for badger, an address
// for redis.
type Opener func(path string) (node.Storage, error)

type cacheKey struct {
	typ  string
	path string
}

// Cache shares one storage handle per (type, path). It is constructed once per
// process and injected into every engine that needs storage.
type Cache struct {
	mu      sync.Mutex
	openers map[string]Opener
	handles map[cacheKey]node.Storage
	logger  *slog.Logger
}

// NewCache returns a cache able to open memory, badger and redis handles.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		openers: make(map[string]Opener),
		handles: make(map[cacheKey]node.Storage),
		logger:  logger,
	}
	c.openers[TypeMemory] = func(string) (node.Storage, error) { return NewMemory(), nil }
	c.openers[TypeBadger] = func(path string) (node.Storage, error) {
		return OpenBadger(BadgerConfig{Path: path, SyncWrites: true, Logger: logger})
	}
	c.openers[TypeRedis] = func(path string) (node.Storage, error) { return NewRedis(path) }
	return c
}

// SetOpener installs or replaces the opener for a handle type.
func (c *Cache) SetOpener(typ string, open Opener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openers[typ] = open
}

// Types lists the handle types the cache can open.
func (c *Cache) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.openers))
	for t := range c.openers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Open returns the cached handle for (typ, path), opening it on first use.
func (c *Cache) Open(typ, path string) (node.Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{typ: typ, path: path}
	if h, ok := c.handles[key]; ok {
		return h, nil
	}

	open, ok := c.openers[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unknown storage type %q", node.ErrConfiguration, typ)
	}
	h, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s storage at %q: %v", node.ErrResource, typ, path, err)
	}

	c.logger.Info("Opened storage handle", "type", typ, "path", path)
	c.handles[key] = h
	return h, nil
}

// Close closes every cached handle and empties the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, h := range c.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s storage %q: %w", key.typ, key.path, err))
		}
		delete(c.handles, key)
	}
	return errors.Join(errs...)
}
