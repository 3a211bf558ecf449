package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nodeflow/services/node"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateErrored State = "error"
)

// Step phases.
const (
	PhaseInitialize = "initialize"
	PhasePass       = "pass"
	PhaseTick       = "tick"
)

// Step statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

var (
	// ErrNodeNotFound is returned when an operation names a node the run does not have.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotTriggerable is returned when arming a node that is not in triggered mode.
	ErrNotTriggerable = errors.New("node is not triggerable")
	// ErrAlreadyStarted is returned by Start on a run that left the idle state.
	ErrAlreadyStarted = errors.New("run already started")
)

// StepResult is the outcome of one node hook invocation.
type StepResult struct {
	NodeID    string       `json:"nodeId"`
	NodeType  string       `json:"nodeType"`
	Phase     string       `json:"phase"`
	Status    string       `json:"status"`
	Duration  int64        `json:"duration"`
	Output    node.Outputs `json:"output,omitempty"`
	Timestamp string       `json:"timestamp"`
	Error     string       `json:"error,omitempty"`
	Err       error        `json:"-"`
}

// PassResult collects the steps of one pass over once-mode nodes.
type PassResult struct {
	Steps []StepResult
}

// Failed returns the failed steps.
func (r PassResult) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusError {
			out = append(out, s)
		}
	}
	return out
}

// TickResult collects what happened during one tick.
type TickResult struct {
	Tick  uint64
	Fired []string
	Steps []StepResult
}

// Changed reports whether the tick produced anything new.
func (r TickResult) Changed() bool { return len(r.Steps) > 0 }

// Snapshot is the state of a run handed to observers after a pass or tick.
type Snapshot struct {
	Phase         string                  `json:"phase"`
	Tick          uint64                  `json:"tick"`
	Outputs       map[string]node.Outputs `json:"outputs"`
	Steps         []StepResult            `json:"steps"`
	Errors        map[string]string       `json:"errors,omitempty"`
	ExecutedNodes []string                `json:"executedNodes"`
}

// Run is one live instantiation of a workflow graph with its own context and
// node instances. Pass and Tick are driven from a single goroutine; Stop and
// Trigger may be called from any goroutine.
type Run struct {
	engine     *Engine
	built      *Built
	plan       *plan
	ec         *node.Context
	logger     *slog.Logger
	interval   time.Duration
	onSnapshot func(Snapshot)

	passNodes []string            // once-mode nodes not fed by an event source
	sources   []string            // continuous and triggered nodes, in order
	cascade   map[string][]string // once-mode nodes re-run when a source fires

	// Loop-owned state.
	disabled map[string]error
	failures map[string]error
	executed []string
	seen     map[string]bool
	tick     uint64
	fatalErr error

	mu       sync.Mutex
	state    State
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	disposeOnce sync.Once
	disposeErr  error
}

func newRun(e *Engine, b *Built, p *plan, ec *node.Context, interval time.Duration, onSnapshot func(Snapshot)) *Run {
	r := &Run{
		engine:     e,
		built:      b,
		plan:       p,
		ec:         ec,
		logger:     ec.Logger,
		interval:   interval,
		onSnapshot: onSnapshot,
		disabled:   make(map[string]error),
		failures:   make(map[string]error),
		seen:       make(map[string]bool),
		cascade:    make(map[string][]string),
		state:      StateIdle,
	}

	// A firing only re-executes once-mode nodes. Continuous and triggered
	// nodes downstream keep their own schedule, and the cascade stops there.
	isOnce := func(id string) bool { return b.Nodes[id].Mode() == node.ModeOnce }

	eventDriven := make(map[string]bool)
	for _, id := range p.order {
		if isOnce(id) {
			continue
		}
		r.sources = append(r.sources, id)
		r.cascade[id] = p.reachable(id, isOnce)
		for _, d := range p.downstream[id] {
			eventDriven[d] = true
		}
	}
	for _, id := range p.order {
		if isOnce(id) && !eventDriven[id] {
			r.passNodes = append(r.passNodes, id)
		}
	}
	return r
}

// ID returns the run id.
func (r *Run) ID() string { return r.ec.RunID }

// Context exposes the run's execution context. Read it only from the loop
// goroutine or after the run has stopped.
func (r *Run) Context() *node.Context { return r.ec }

// Order returns the dependency order of every node.
func (r *Run) Order() []string { return append([]string(nil), r.plan.order...) }

// Downstream returns the nodes a firing of id cascades to.
func (r *Run) Downstream(id string) []string { return append([]string(nil), r.plan.downstream[id]...) }

// State returns the lifecycle state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error that moved the run to StateErrored, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the run loop exits. It is nil before Start.
func (r *Run) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Run) setState(s State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	if err != nil {
		r.err = err
	}
}

// Trigger arms the latch of a triggered node. The next tick executes it once.
func (r *Run) Trigger(nodeID string) error {
	n, ok := r.built.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	t, ok := n.(node.Triggerable)
	if !ok || n.Mode() != node.ModeTriggered {
		return fmt.Errorf("%w: %q", ErrNotTriggerable, nodeID)
	}
	t.SetTriggered()
	return nil
}

// Start launches the run loop: initialize every node, execute one pass, then
// tick until Stop. A graph without continuous or triggered nodes stops itself
// after the pass.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = StateRunning
	r.mu.Unlock()

	r.engine.metrics.RunsActive.Inc()
	go r.loop(ctx)
	return nil
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.done)
	defer r.engine.metrics.RunsActive.Dec()

	r.logger.Info("Run started", "nodes", len(r.built.Declared), "sources", len(r.sources))

	initSteps, err := r.Initialize(ctx)
	if err != nil {
		r.abort(err)
		return
	}

	pass := r.Pass(ctx)
	r.notify(PhasePass, append(initSteps, pass.Steps...))
	if r.fatalErr != nil {
		r.abort(r.fatalErr)
		return
	}

	if len(r.sources) == 0 {
		r.dispose()
		r.setState(StateStopped, nil)
		r.logger.Info("Run finished", "reason", "no continuous or triggered nodes")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		res := r.Tick(ctx)
		if res.Changed() {
			r.notify(PhaseTick, res.Steps)
		}
		if r.fatalErr != nil {
			r.abort(r.fatalErr)
			return
		}
	}
}

func (r *Run) abort(err error) {
	r.logger.Error("Run aborted", "error", err)
	r.dispose()
	r.setState(StateErrored, err)
}

// Initialize calls Initialize on every node in declaration order. A failing
// node is disabled for the rest of the run and reported as a failed step. An
// error wrapping node.ErrFatal aborts instead and is returned.
func (r *Run) Initialize(ctx context.Context) ([]StepResult, error) {
	initCtx := node.WithVariables(ctx, r.ec.Variables)
	var steps []StepResult
	for _, id := range r.built.Declared {
		n := r.built.Nodes[id]
		start := time.Now()
		_, err := safeCall(func() (node.Outputs, error) {
			return nil, n.Initialize(initCtx, r.built.Graph, r.built.Nodes)
		})
		if err == nil {
			continue
		}

		nerr := &NodeError{NodeID: id, NodeType: n.Type(), Phase: PhaseInitialize, Err: err}
		if errors.Is(err, node.ErrFatal) {
			return steps, nerr
		}
		r.disabled[id] = nerr
		r.failures[id] = nerr
		r.logger.Warn("Node initialization failed, node disabled", "node_id", id, "node_type", n.Type(), "error", err)
		steps = append(steps, r.stepResult(n, PhaseInitialize, start, nil, nerr))
	}
	return steps, nil
}

// Pass executes every once-mode node not fed by an event source, in
// dependency order. A failed node is recorded and its output slot cleared;
// dependents still run and resolve that input from their fallbacks.
func (r *Run) Pass(ctx context.Context) PassResult {
	var res PassResult
	for _, id := range r.passNodes {
		if ctx.Err() != nil || r.fatalErr != nil {
			break
		}
		if _, off := r.disabled[id]; off {
			continue
		}
		res.Steps = append(res.Steps, r.execute(ctx, r.built.Nodes[id], PhasePass))
	}
	return res
}

// Tick polls every continuous node, checks and clears every triggered node's
// latch, then executes the union of the firing nodes' once-mode downstream
// sets once, in dependency order.
func (r *Run) Tick(ctx context.Context) TickResult {
	r.tick++
	r.engine.metrics.Ticks.Inc()
	res := TickResult{Tick: r.tick}

	for _, id := range r.sources {
		if ctx.Err() != nil || r.fatalErr != nil {
			return res
		}
		if _, off := r.disabled[id]; off {
			continue
		}
		n := r.built.Nodes[id]

		switch n.Mode() {
		case node.ModeContinuous:
			t, ok := n.(node.Ticker)
			if !ok {
				continue
			}
			start := time.Now()
			out, err := safeCall(func() (node.Outputs, error) { return t.OnTick(ctx, r.ec) })
			if err == nil && out == nil {
				continue
			}
			res.Steps = append(res.Steps, r.record(n, PhaseTick, start, out, err))
			if err == nil {
				res.Fired = append(res.Fired, id)
			}

		case node.ModeTriggered:
			t, ok := n.(node.Triggerable)
			if !ok || !t.CheckAndClearTrigger() {
				continue
			}
			step := r.execute(ctx, n, PhaseTick)
			res.Steps = append(res.Steps, step)
			if step.Status == StatusCompleted {
				res.Fired = append(res.Fired, id)
			}
		}
	}

	for _, id := range r.affected(res.Fired) {
		if ctx.Err() != nil || r.fatalErr != nil {
			break
		}
		if _, off := r.disabled[id]; off {
			continue
		}
		res.Steps = append(res.Steps, r.execute(ctx, r.built.Nodes[id], PhaseTick))
	}

	if len(res.Fired) > 0 {
		r.logger.Debug("Tick fired", "tick", r.tick, "fired", res.Fired, "steps", len(res.Steps))
	}
	return res
}

// affected merges the once-mode cascades of the fired nodes, ordered by
// dependency.
func (r *Run) affected(fired []string) []string {
	if len(fired) == 0 {
		return nil
	}
	include := make(map[string]bool)
	for _, id := range fired {
		for _, d := range r.cascade[id] {
			include[d] = true
		}
	}
	out := make([]string, 0, len(include))
	for _, id := range r.plan.order {
		if include[id] {
			out = append(out, id)
		}
	}
	return out
}

func (r *Run) execute(ctx context.Context, n node.Node, phase string) StepResult {
	start := time.Now()
	out, err := safeCall(func() (node.Outputs, error) { return n.Execute(ctx, r.ec) })
	return r.record(n, phase, start, out, err)
}

// record writes the node's output slot (or clears it on failure), updates the
// failure map and metrics, and builds the step result.
func (r *Run) record(n node.Node, phase string, start time.Time, out node.Outputs, err error) StepResult {
	id := n.ID()
	elapsed := time.Since(start)
	r.engine.metrics.NodeDuration.WithLabelValues(n.Type()).Observe(elapsed.Seconds())

	if !r.seen[id] {
		r.seen[id] = true
		r.executed = append(r.executed, id)
	}

	if err != nil {
		nerr := &NodeError{NodeID: id, NodeType: n.Type(), Phase: phase, Err: err}
		r.ec.ClearOutputs(id)
		r.failures[id] = nerr
		r.engine.metrics.NodeExecutions.WithLabelValues(n.Type(), StatusError).Inc()
		r.logger.Warn("Node execution failed", "node_id", id, "node_type", n.Type(), "phase", phase, "error", err)
		if errors.Is(err, node.ErrFatal) && r.fatalErr == nil {
			r.fatalErr = nerr
		}
		return r.stepResult(n, phase, start, nil, nerr)
	}

	if out == nil {
		out = node.Outputs{}
	}
	r.ec.SetOutputs(id, out)
	delete(r.failures, id)
	r.engine.metrics.NodeExecutions.WithLabelValues(n.Type(), StatusCompleted).Inc()
	return r.stepResult(n, phase, start, out, nil)
}

func (r *Run) stepResult(n node.Node, phase string, start time.Time, out node.Outputs, err error) StepResult {
	step := StepResult{
		NodeID:    n.ID(),
		NodeType:  n.Type(),
		Phase:     phase,
		Status:    StatusCompleted,
		Duration:  time.Since(start).Milliseconds(),
		Output:    out,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		step.Status = StatusError
		step.Error = err.Error()
		step.Err = err
	}
	return step
}

// Snapshot captures the current outputs, failures and executed nodes.
func (r *Run) Snapshot(phase string, steps []StepResult) Snapshot {
	snap := Snapshot{
		Phase:         phase,
		Tick:          r.tick,
		Outputs:       r.ec.Snapshot(),
		Steps:         steps,
		ExecutedNodes: append([]string(nil), r.executed...),
	}
	if len(r.failures) > 0 {
		snap.Errors = make(map[string]string, len(r.failures))
		for id, err := range r.failures {
			snap.Errors[id] = err.Error()
		}
	}
	return snap
}

func (r *Run) notify(phase string, steps []StepResult) {
	if r.onSnapshot == nil {
		return
	}
	r.onSnapshot(r.Snapshot(phase, steps))
}

// Stop halts the tick loop before its next iteration, waits for the loop to
// exit, and disposes every node exactly once. It is safe to call repeatedly
// and on a run that was never started.
func (r *Run) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cancel, done := r.cancel, r.done
		r.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		r.dispose()

		r.mu.Lock()
		if r.state != StateErrored {
			r.state = StateStopped
		}
		r.mu.Unlock()
		r.logger.Info("Run stopped")
	})
	return r.disposeErr
}

func (r *Run) dispose() {
	r.disposeOnce.Do(func() {
		var errs []error
		for _, id := range r.built.Declared {
			n := r.built.Nodes[id]
			if _, err := safeCall(func() (node.Outputs, error) { return nil, n.Dispose() }); err != nil {
				r.logger.Warn("Node dispose failed", "node_id", id, "node_type", n.Type(), "error", err)
				errs = append(errs, &NodeError{NodeID: id, NodeType: n.Type(), Phase: "dispose", Err: err})
			}
		}
		r.disposeErr = errors.Join(errs...)
	})
}

// safeCall runs a node hook, converting a panic into an error.
func safeCall(fn func() (node.Outputs, error)) (out node.Outputs, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
