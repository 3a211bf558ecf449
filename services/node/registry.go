package node

import (
	"fmt"
	"sort"
	"sync"
)

// Definition registers one node type.
type Definition struct {
	Type        string
	// Mode must equal the Mode of every node New returns.
	Mode        ExecutionMode
	Description string
	New         Constructor
}

// TypeInfo describes a registered type name for listings.
type TypeInfo struct {
	Type        string        `json:"type"`
	Mode        ExecutionMode `json:"mode"`
	Description string        `json:"description,omitempty"`
	AliasOf     string        `json:"aliasOf,omitempty"`
}

// Registry maps type names to constructors. It is append-only: a name, once
// registered, keeps its constructor for the registry's lifetime.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]Definition
	aliases map[string]string

	bulkOnce sync.Once
	bulkErr  error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]Definition),
		aliases: make(map[string]string),
	}
}

// Register adds a node type. Registering a name twice is an error.
func (r *Registry) Register(def Definition) error {
	if def.Type == "" || def.New == nil {
		return fmt.Errorf("%w: node definition needs a type and a constructor", ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(def.Type) {
		return fmt.Errorf("%w: node type %q already registered", ErrConfiguration, def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

// Alias makes alias resolve to the constructor of an existing type.
func (r *Registry) Alias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[target]; !ok {
		return fmt.Errorf("%w: alias %q targets unknown node type %q", ErrConfiguration, alias, target)
	}
	if r.taken(alias) {
		return fmt.Errorf("%w: node type %q already registered", ErrConfiguration, alias)
	}
	r.aliases[alias] = target
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isDef := r.defs[name]
	_, isAlias := r.aliases[name]
	return isDef || isAlias
}

// RegisterAll runs fn against the registry the first time it is called.
// Later calls are no-ops and return the first call's error.
func (r *Registry) RegisterAll(fn func(*Registry) error) error {
	r.bulkOnce.Do(func() {
		r.bulkErr = fn(r)
	})
	return r.bulkErr
}

// Lookup resolves a type name, following aliases. An unknown name reports false.
func (r *Registry) Lookup(nodeType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[nodeType]; ok {
		nodeType = target
	}
	def, ok := r.defs[nodeType]
	return def, ok
}

// Len counts registered names, aliases included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs) + len(r.aliases)
}

// Types lists every registered name sorted by name.
func (r *Registry) Types() []TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TypeInfo, 0, len(r.defs)+len(r.aliases))
	for name, def := range r.defs {
		out = append(out, TypeInfo{Type: name, Mode: def.Mode, Description: def.Description})
	}
	for alias, target := range r.aliases {
		def := r.defs[target]
		out = append(out, TypeInfo{Type: alias, Mode: def.Mode, Description: def.Description, AliasOf: target})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
