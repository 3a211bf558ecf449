// Package supervisor tracks live runs for external callers: it starts runs
// without blocking on their first pass, reports their status with a results
// version pollers can compare cheaply, and stops them on request.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nodeflow/services/engine"
	"nodeflow/services/workflow"
)

var (
	// ErrRunNotFound is returned for run ids the supervisor does not know.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotRunning is returned when triggering a run that has stopped.
	ErrRunNotRunning = errors.New("run is not running")
)

const recordTimeout = 5 * time.Second

// Status is the externally visible state of a run.
type Status struct {
	RunID          string            `json:"run_id"`
	WorkflowID     string            `json:"workflow_id"`
	State          engine.State      `json:"state"`
	ResultsVersion uint64            `json:"results_version"`
	LatestResults  *engine.Snapshot  `json:"latest_results,omitempty"`
	ExecutedNodes  []string          `json:"executed_nodes"`
	Errors         map[string]string `json:"errors,omitempty"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// StartOptions configures a run started through the supervisor.
type StartOptions struct {
	Variables    map[string]any
	StorageType  string
	StoragePath  string
	TickInterval time.Duration
}

type entry struct {
	run        *engine.Run
	workflowID string
	startedAt  time.Time

	mu        sync.Mutex
	version   uint64
	latest    *engine.Snapshot
	updatedAt time.Time

	// recordMu orders recorder writes so an older status never lands last.
	recordMu sync.Mutex
}

func (e *entry) status(since uint64) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		RunID:          e.run.ID(),
		WorkflowID:     e.workflowID,
		State:          e.run.State(),
		ResultsVersion: e.version,
		ExecutedNodes:  []string{},
		StartedAt:      e.startedAt,
		UpdatedAt:      e.updatedAt,
	}
	if err := e.run.Err(); err != nil {
		st.Error = err.Error()
	}
	if e.latest != nil {
		st.ExecutedNodes = e.latest.ExecutedNodes
		st.Errors = e.latest.Errors
		if e.version > since {
			st.LatestResults = e.latest
		}
	}
	return st
}

// Supervisor owns the runs started through it.
type Supervisor struct {
	engine   *engine.Engine
	recorder Recorder
	logger   *slog.Logger
	newID    func() string

	mu   sync.RWMutex
	runs map[string]*entry
}

type Option func(*Supervisor)

// WithRecorder persists run records on every state change.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithIDGenerator replaces the random run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Supervisor) { s.newID = fn }
}

// New creates a Supervisor starting runs on e.
func New(e *engine.Engine, opts ...Option) *Supervisor {
	s := &Supervisor{
		engine: e,
		logger: slog.Default(),
		newID:  uuid.NewString,
		runs:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start prepares g and launches its run loop, returning the run id without
// waiting for the first pass. Configuration errors are returned immediately
// and no run is created.
func (s *Supervisor) Start(ctx context.Context, g *workflow.Graph, opts StartOptions) (string, error) {
	id := s.newID()
	e := &entry{workflowID: g.ID, startedAt: time.Now().UTC()}
	e.updatedAt = e.startedAt

	run, err := s.engine.Prepare(g, engine.RunOptions{
		RunID:        id,
		Variables:    opts.Variables,
		StorageType:  opts.StorageType,
		StoragePath:  opts.StoragePath,
		TickInterval: opts.TickInterval,
		OnSnapshot:   func(snap engine.Snapshot) { s.publish(e, snap) },
	})
	if err != nil {
		s.logger.Error("Failed to prepare run", "workflow_id", g.ID, "error", err)
		return "", err
	}
	e.run = run

	s.mu.Lock()
	s.runs[id] = e
	s.mu.Unlock()

	// The run outlives the request that started it.
	if err := run.Start(context.WithoutCancel(ctx)); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	s.record(e)
	go s.watch(e)

	s.logger.Info("Run started", "run_id", id, "workflow_id", g.ID)
	return id, nil
}

// publish stores a new snapshot and bumps the results version by one.
func (s *Supervisor) publish(e *entry, snap engine.Snapshot) {
	e.mu.Lock()
	e.version++
	e.latest = &snap
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()
	s.record(e)
}

// watch records the final state once the run loop exits on its own.
func (s *Supervisor) watch(e *entry) {
	<-e.run.Done()
	if e.run.State() == engine.StateRunning {
		// Loop exited without a terminal state: finish the stop.
		e.run.Stop()
	}
	e.mu.Lock()
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()
	s.record(e)
}

func (s *Supervisor) record(e *entry) {
	if s.recorder == nil {
		return
	}
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	st := e.status(0)
	if err := s.recorder.Record(ctx, recordFromStatus(st)); err != nil {
		s.logger.Warn("Failed to record run", "run_id", st.RunID, "error", err)
	}
}

func (s *Supervisor) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	return e, ok
}

// Status reports the state of a run. LatestResults is set only when the
// results version is greater than since; pass 0 to always receive it. Runs
// unknown to this process are looked up in the recorder.
func (s *Supervisor) Status(ctx context.Context, id string, since uint64) (*Status, error) {
	if e, ok := s.lookup(id); ok {
		st := e.status(since)
		return &st, nil
	}
	if s.recorder != nil {
		rec, err := s.recorder.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			st := rec.status(since)
			return &st, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Stop stops a run and disposes its nodes. Stopping a stopped run is a no-op.
func (s *Supervisor) Stop(id string) (*Status, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err := e.run.Stop(); err != nil {
		s.logger.Warn("Run stopped with dispose errors", "run_id", id, "error", err)
	}
	e.mu.Lock()
	e.updatedAt = time.Now().UTC()
	e.mu.Unlock()
	s.record(e)

	st := e.status(0)
	return &st, nil
}

// Trigger arms a triggered node of a running run.
func (s *Supervisor) Trigger(id, nodeID string) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if e.run.State() != engine.StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrRunNotRunning, id, e.run.State())
	}
	return e.run.Trigger(nodeID)
}

// List returns the status of every run in this process, newest first,
// without results.
func (s *Supervisor) List() []Status {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.runs))
	for _, e := range s.runs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		st := e.status(^uint64(0))
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Shutdown stops every running run concurrently, returning early if ctx ends.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.runs))
	for id, e := range s.runs {
		if e.run.State() == engine.StateRunning {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := s.Stop(id)
			return err
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		s.logger.Info("Supervisor shut down", "runs_stopped", len(ids))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
