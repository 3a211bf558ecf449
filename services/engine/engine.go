// Package engine turns workflow documents into runs: it builds and orders the
// node graph, executes once-mode nodes in dependency order, drives the tick
// loop for continuous and triggered nodes, and disposes every node on stop.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

// DefaultTickInterval is the tick cadence used when none is configured.
const DefaultTickInterval = time.Second

// StorageResolver hands out shared storage handles keyed by (type, path).
type StorageResolver interface {
	Open(typ, path string) (node.Storage, error)
}

// Engine prepares runs against an injected registry and storage resolver.
// Engines hold no per-run state, so several can coexist in one process.
type Engine struct {
	registry     *node.Registry
	storage      StorageResolver
	logger       *slog.Logger
	metrics      *Metrics
	tickInterval time.Duration
}

type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the collectors the engine updates.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStorage sets the resolver used when a run asks for a storage handle.
func WithStorage(r StorageResolver) Option {
	return func(e *Engine) { e.storage = r }
}

// WithTickInterval sets the default tick cadence for runs.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// NewEngine creates an Engine resolving node types through registry.
func NewEngine(registry *node.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:     registry,
		logger:       slog.Default(),
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Registry returns the registry the engine resolves node types with.
func (e *Engine) Registry() *node.Registry { return e.registry }

// Metrics returns the collectors the engine updates.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// RunOptions configures one run.
type RunOptions struct {
	RunID     string
	Variables map[string]any
	// StorageType and StoragePath select the shared storage handle exposed to
	// nodes. An empty type runs without storage.
	StorageType string
	StoragePath string
	// TickInterval overrides the engine default when positive.
	TickInterval time.Duration
	// OnSnapshot is called from the run loop each time a pass or tick
	// produces new results.
	OnSnapshot func(Snapshot)
}

// Prepare builds and schedules g without running any node hook. Every
// configuration error (unknown type, bad connection, cycle, unavailable
// storage) surfaces here.
func (e *Engine) Prepare(g *workflow.Graph, opts RunOptions) (*Run, error) {
	built, err := Build(e.registry, g)
	if err != nil {
		return nil, err
	}
	p, err := planGraph(built)
	if err != nil {
		return nil, err
	}

	var store node.Storage
	if opts.StorageType != "" {
		if e.storage == nil {
			return nil, fmt.Errorf("%w: storage %q requested but no storage resolver configured", node.ErrConfiguration, opts.StorageType)
		}
		store, err = e.storage.Open(opts.StorageType, opts.StoragePath)
		if err != nil {
			return nil, err
		}
	}

	interval := opts.TickInterval
	if interval <= 0 {
		interval = e.tickInterval
	}

	ec := node.NewContext(opts.Variables, store)
	ec.RunID = opts.RunID
	ec.WorkflowID = g.ID
	ec.Logger = e.logger.With("run_id", opts.RunID, "workflow_id", g.ID)

	return newRun(e, built, p, ec, interval, opts.OnSnapshot), nil
}
