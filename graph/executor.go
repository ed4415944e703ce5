package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/notify"
	"github.com/randalmurphal/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/state"
	"github.com/randalmurphal/agentgraph/transcript"
)

// RunResult is the outcome of Run or Resume.
type RunResult struct {
	ExecutionID string           `json:"execution_id"`
	Status      Status           `json:"status"`
	State       state.State      `json:"state"`
	Steps       int              `json:"steps"`
	Errors      []ExecutionError `json:"errors,omitempty"`

	// PausedAt and Prompt are set when the run paused for human input.
	PausedAt string `json:"paused_at,omitempty"`
	Prompt   string `json:"prompt,omitempty"`

	// Snapshot resumes the run. It is set unless the run completed.
	Snapshot *checkpoint.Snapshot `json:"-"`
}

// run is the mutable state of one execution. The main loop owns it; parallel
// branches only read it.
type run struct {
	g        *CompiledGraph
	deps     RuntimeDependencies
	store    checkpoint.Store
	logger   *slog.Logger
	tel      *observability.Telemetry
	sessions *sessionPool

	executionID string
	input       map[string]any
	resumed     bool
	nested      bool

	// saved is set once the store holds a snapshot of this execution.
	saved bool

	state    state.State
	queue    []string
	loops    map[string]int
	errors   []ExecutionError
	step     int
	pausedAt string
	prompt   string
}

// runSettings merges run options over the graph's configuration.
func (g *CompiledGraph) runSettings(opts []RunOption) (runConfig, RuntimeDependencies) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	deps := g.config.Deps.With(rc.deps)
	if rc.noCheckpoints {
		deps.Checkpoints = nil
	}
	return rc, deps
}

func (g *CompiledGraph) newRun(opts []RunOption) *run {
	rc, deps := g.runSettings(opts)
	id := rc.executionID
	if id == "" {
		id = newExecutionID()
	}
	return &run{
		g:           g,
		deps:        deps,
		store:       deps.Checkpoints,
		logger:      deps.logger(),
		tel:         deps.telemetry(),
		sessions:    newSessionPool(deps.Sessions),
		executionID: id,
		nested:      rc.noCheckpoints,
		loops:       make(map[string]int),
	}
}

func newExecutionID() string {
	id, err := nanoid.New()
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// =============================================================================
// Entry Points
// =============================================================================

// Run executes the graph from its start node until it completes, pauses,
// fails or is cancelled. input is applied to the initial state through the
// field reducers.
//
// A failed run returns a *RunError and a cancelled run a *CancelledError;
// in both cases the RunResult is also returned and carries a snapshot for
// resuming.
func (g *CompiledGraph) Run(ctx context.Context, input map[string]any, opts ...RunOption) (*RunResult, error) {
	r, err := g.begin(input, opts)
	if err != nil {
		return nil, err
	}
	return r.drive(ctx, func(StepResult) bool { return true })
}

// Stream executes the graph like Run and yields each step as it completes.
// The sequence can be consumed once. The error is non-nil only on the final
// element of a failed or cancelled run. Breaking out early stops the run
// after the current step and saves a resumable snapshot when a store is
// configured; it does not cancel ctx.
func (g *CompiledGraph) Stream(ctx context.Context, input map[string]any, opts ...RunOption) iter.Seq2[StepResult, error] {
	return stream(ctx, func() (*run, error) { return g.begin(input, opts) })
}

// Resume continues a run from a snapshot. For a paused snapshot, input is
// merged through the pausing node's input mapper and the run continues with
// the nodes after it. Other unfinished snapshots continue with their queue
// and must be resumed with nil input. snap is never modified, so resuming
// twice from one snapshot applies the input once per resume.
func (g *CompiledGraph) Resume(ctx context.Context, snap *checkpoint.Snapshot, input any, opts ...RunOption) (*RunResult, error) {
	r, err := g.resume(ctx, snap, input, opts)
	if err != nil {
		return nil, err
	}
	return r.drive(ctx, func(StepResult) bool { return true })
}

// ResumeStream is the streaming form of Resume.
func (g *CompiledGraph) ResumeStream(ctx context.Context, snap *checkpoint.Snapshot, input any, opts ...RunOption) iter.Seq2[StepResult, error] {
	return stream(ctx, func() (*run, error) { return g.resume(ctx, snap, input, opts) })
}

// ResumeFromStore loads the latest snapshot of executionID from the
// configured checkpoint store and resumes it.
func (g *CompiledGraph) ResumeFromStore(ctx context.Context, executionID string, input any, opts ...RunOption) (*RunResult, error) {
	_, deps := g.runSettings(opts)
	if deps.Checkpoints == nil {
		return nil, ErrNoCheckpointStore
	}
	snap, err := deps.Checkpoints.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", executionID, err)
	}
	return g.Resume(ctx, snap, input, opts...)
}

func stream(ctx context.Context, setup func() (*run, error)) iter.Seq2[StepResult, error] {
	var used atomic.Bool
	return func(yield func(StepResult, error) bool) {
		if used.Swap(true) {
			yield(StepResult{}, ErrStreamConsumed)
			return
		}
		r, err := setup()
		if err != nil {
			yield(StepResult{}, err)
			return
		}

		stopped := false
		res, err := r.drive(ctx, func(s StepResult) bool {
			if stopped || !yield(s, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(StepResult{
				NodeID: failedNode(err),
				Step:   res.Steps,
				State:  res.State,
				Status: res.Status,
				Err:    err,
			}, err)
		}
	}
}

func failedNode(err error) string {
	var runErr *RunError
	var cancelled *CancelledError
	switch {
	case errors.As(err, &runErr):
		return runErr.NodeID
	case errors.As(err, &cancelled):
		return cancelled.NodeID
	}
	return ""
}

func (g *CompiledGraph) begin(input map[string]any, opts []RunOption) (*run, error) {
	r := g.newRun(opts)
	st, err := g.schema.Apply(g.schema.Initialize(r.executionID), input)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	st.LastUpdated = time.Now().UTC()
	r.state = st
	r.input = input
	r.queue = []string{g.start}
	return r, nil
}

func (g *CompiledGraph) resume(ctx context.Context, snap *checkpoint.Snapshot, input any, opts []RunOption) (*run, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrNotResumable)
	}
	snap = snap.Clone()
	if snap.Graph != g.name {
		return nil, fmt.Errorf("%w: snapshot of %q, graph %q", ErrGraphMismatch, snap.Graph, g.name)
	}
	if !snap.Resumable() {
		return nil, fmt.Errorf("%w: execution %s completed", ErrNotResumable, snap.ExecutionID)
	}
	if input != nil && snap.Status != checkpoint.StatusPaused {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrNotPaused, snap.ExecutionID, snap.Status)
	}

	r := g.newRun(opts)
	if err := r.restore(snap); err != nil {
		return nil, err
	}
	r.resumed = true
	r.saved = r.store != nil
	if snap.Status == checkpoint.StatusPaused {
		if err := r.applyResumeInput(ctx, snap.PausedAt, input); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// applyResumeInput merges human input through the paused node and queues
// the nodes that follow it.
func (r *run) applyResumeInput(ctx context.Context, nodeID string, input any) error {
	n, ok := r.g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: paused node %s", ErrNodeNotFound, nodeID)
	}
	ec := r.newContext(ctx, n, r.state, r.errors, 1)

	var update map[string]any
	if m, ok := n.(inputMapper); ok {
		var err error
		if update, err = m.mapInput(ec, input); err != nil {
			return fmt.Errorf("map input for %s: %w", nodeID, err)
		}
	}
	st, err := r.g.schema.Apply(r.state, update)
	if err != nil {
		return fmt.Errorf("apply input for %s: %w", nodeID, err)
	}
	if input != nil {
		st = st.WithOutput(nodeID, input)
	}
	st.LastUpdated = time.Now().UTC()
	r.state = st

	next, loopErr, err := r.next(n, NodeResult{}, st, r.loops)
	if err != nil {
		return err
	}
	if loopErr != nil {
		r.errors = append(r.errors, *loopErr)
	}
	r.enqueue(next)
	return nil
}

func (r *run) newContext(ctx context.Context, n Node, st state.State, prior []ExecutionError, attempt int) *ExecutionContext {
	return &ExecutionContext{
		Context:     ctx,
		ExecutionID: r.executionID,
		Graph:       r.g.name,
		NodeID:      n.ID(),
		Attempt:     attempt,
		State:       st.Clone(),
		Errors:      prior,
		deps:        r.deps,
		config:      r.g.config,
		sessions:    r.sessions,
		brancher:    r,
	}
}

// =============================================================================
// Main Loop
// =============================================================================

func (r *run) drive(ctx context.Context, yield func(StepResult) bool) (*RunResult, error) {
	ctx, span := r.tel.StartRun(ctx, r.g.name, r.executionID)
	r.started(ctx)

	res, err := r.loop(ctx, yield)

	observability.EndSpan(span, string(res.Status), err)
	r.finished(ctx, res, err)
	return res, err
}

func (r *run) loop(ctx context.Context, yield func(StepResult) bool) (*RunResult, error) {
	for len(r.queue) > 0 {
		id := r.queue[0]
		if err := ctx.Err(); err != nil {
			return r.cancelled(ctx, id, false, context.Cause(ctx))
		}
		if max := r.g.config.MaxSteps; max > 0 && r.step >= max {
			return r.stepLimit(ctx, &StepLimitError{Limit: max, NodeID: id})
		}

		r.queue = r.queue[1:]
		n := r.g.nodes[id]

		res, errs, err := r.execute(ctx, n, r.state, r.errors)
		r.errors = append(r.errors, errs...)
		if err != nil {
			var limit *StepLimitError
			switch {
			case ctx.Err() != nil:
				r.queue = slices.Insert(r.queue, 0, id)
				return r.cancelled(ctx, id, true, context.Cause(ctx))
			case errors.As(err, &limit):
				r.queue = slices.Insert(r.queue, 0, id)
				return r.failed(ctx, id, err)
			}
			if done, out, outErr := r.nodeFailed(ctx, yield, n, err); done {
				return out, outErr
			}
			continue
		}

		if res.fork != nil {
			for _, s := range res.fork.steps {
				r.step++
				s.Step = r.step
				if !yield(s) {
					r.queue = slices.Insert(r.queue, 0, id)
					return r.interrupted(ctx)
				}
			}
		}

		st, err := r.merge(r.state, id, res)
		if err != nil {
			r.record(id, ErrorKindState, err)
			if done, out, outErr := r.nodeFailed(ctx, yield, n, err); done {
				return out, outErr
			}
			continue
		}
		r.state = st
		r.step++

		stepRes := res
		stepRes.fork = nil
		step := StepResult{
			Step:   r.step,
			NodeID: id,
			Kind:   n.Kind(),
			State:  st,
			Result: &stepRes,
		}

		if sig, ok := res.signal(SignalHumanInputRequired); ok {
			return r.paused(ctx, yield, step, sig.prompt())
		}

		next, loopErr, err := r.next(n, res, st, r.loops)
		if loopErr != nil {
			r.errors = append(r.errors, *loopErr)
		}
		if err != nil {
			r.record(id, ErrorKindRouting, err)
			if done, out, outErr := r.nodeFailed(ctx, yield, n, err); done {
				return out, outErr
			}
			continue
		}
		r.enqueue(next)

		requested := r.observeSignals(ctx, n, res)
		if requested || (r.g.config.AutoCheckpoint && r.store != nil) {
			r.saveProgress(ctx)
		}

		step.Status = StatusRunning
		if len(r.queue) == 0 {
			step.Status = StatusCompleted
		}
		if !yield(step) {
			if len(r.queue) == 0 {
				return r.completed(ctx)
			}
			return r.interrupted(ctx)
		}
	}
	return r.completed(ctx)
}

// nodeFailed routes a failed node to the catch handler or ends the run.
func (r *run) nodeFailed(ctx context.Context, yield func(StepResult) bool, n Node, err error) (bool, *RunResult, error) {
	id := n.ID()
	catch := r.g.catch
	if catch == "" || id == catch {
		r.queue = slices.Insert(r.queue, 0, id)
		out, outErr := r.failed(ctx, id, err)
		return true, out, outErr
	}

	r.step++
	r.logger.Warn("node failed, routing to catch handler",
		"execution_id", r.executionID,
		"node_id", id,
		"catch", catch,
		"error", err,
	)
	r.notify(ctx, notify.EventNodeFailed, id, err.Error(), map[string]any{"catch": catch})
	// Pending work stays queued behind the handler.
	r.queue = slices.DeleteFunc(r.queue, func(q string) bool { return q == catch })
	r.queue = slices.Insert(r.queue, 0, catch)
	if !yield(StepResult{
		Step:   r.step,
		NodeID: id,
		Kind:   n.Kind(),
		State:  r.state,
		Status: StatusFailed,
		Err:    err,
	}) {
		out, outErr := r.interrupted(ctx)
		return true, out, outErr
	}
	return false, nil, nil
}

func (r *run) record(id string, kind ErrorKind, err error) {
	r.errors = append(r.errors, ExecutionError{
		NodeID:    id,
		Attempt:   1,
		Kind:      kind,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		Fatal:     true,
	})
}

// merge applies a node result to st: branch updates first, in declaration
// order, then the node's own update and output.
func (r *run) merge(st state.State, id string, res NodeResult) (state.State, error) {
	if res.fork != nil {
		for _, b := range res.fork.branches {
			for _, rec := range b.records {
				var err error
				if st, err = r.merge(st, rec.nodeID, rec.result); err != nil {
					return st, err
				}
			}
		}
	}
	next, err := r.g.schema.Apply(st, res.Update)
	if err != nil {
		return st, err
	}
	next = next.WithOutput(id, res.recordedOutput())
	next.LastUpdated = time.Now().UTC()
	return next, nil
}

func (r *run) enqueue(ids []string) {
	for _, id := range ids {
		if !slices.Contains(r.queue, id) {
			r.queue = append(r.queue, id)
		}
	}
}

// observeSignals logs and forwards signals. It reports whether a checkpoint
// was requested.
func (r *run) observeSignals(ctx context.Context, n Node, res NodeResult) bool {
	save := false
	for _, sig := range res.Signals {
		switch sig.Type {
		case SignalCheckpointRequested:
			save = true
		case SignalContextWindowWarning:
			r.logger.Warn("context window nearly full",
				"execution_id", r.executionID,
				"node_id", n.ID(),
				"ratio", sig.Payload["ratio"],
				"session", sig.Payload["session"],
			)
			r.notify(ctx, notify.EventContextWarning, n.ID(), "context window nearly full", sig.Payload)
		case SignalCustom:
			r.logger.Debug("signal", "execution_id", r.executionID, "node_id", n.ID(), "name", sig.Name)
		}
	}
	return save
}

// =============================================================================
// Routing
// =============================================================================

// next resolves the nodes that follow n. Goto overrides everything. A loop
// tail repeats its loop while the loop condition allows, then falls through
// to its ordinary edges. End nodes have no ordinary successors.
func (r *run) next(n Node, res NodeResult, st state.State, loops map[string]int) ([]string, *ExecutionError, error) {
	id := n.ID()
	if len(res.Goto) > 0 {
		for _, t := range res.Goto {
			if _, ok := r.g.nodes[t]; !ok {
				return nil, nil, fmt.Errorf("%w: goto target %s", ErrNodeNotFound, t)
			}
		}
		return slices.Clone(res.Goto), nil, nil
	}

	var loopErr *ExecutionError
	if l, ok := r.g.loops[id]; ok {
		count := loops[l.head] + 1
		done := l.until != nil && l.until(st)
		capped := l.max > 0 && count >= l.max
		if !done && !capped {
			loops[l.head] = count
			return []string{l.head}, nil, nil
		}
		delete(loops, l.head)
		if !done && l.until != nil {
			r.logger.Warn("loop reached max iterations",
				"execution_id", r.executionID,
				"loop", l.head,
				"max_iterations", l.max,
			)
			loopErr = &ExecutionError{
				NodeID:    l.head,
				Attempt:   count,
				Kind:      ErrorKindLoopLimit,
				Message:   fmt.Sprintf("loop %s exited after %d iterations without meeting its condition", l.head, l.max),
				Timestamp: time.Now().UTC(),
			}
		}
	}

	if r.g.ends[id] {
		return nil, loopErr, nil
	}

	var guarded []Edge
	fallback := ""
	for _, e := range r.g.out[id] {
		switch e.Kind {
		case EdgeConditional:
			guarded = append(guarded, e)
		case EdgeNext:
			fallback = e.To
		}
	}
	slices.SortStableFunc(guarded, func(a, b Edge) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	for _, e := range guarded {
		if e.Condition(st) {
			return []string{e.To}, loopErr, nil
		}
	}
	if fallback != "" {
		return []string{fallback}, loopErr, nil
	}
	return nil, loopErr, fmt.Errorf("%w: from %s", ErrNoMatchingRoute, id)
}

// =============================================================================
// Outcomes
// =============================================================================

func (r *run) result(status Status, snap *checkpoint.Snapshot) *RunResult {
	return &RunResult{
		ExecutionID: r.executionID,
		Status:      status,
		State:       r.state,
		Steps:       r.step,
		Errors:      slices.Clone(r.errors),
		PausedAt:    r.pausedAt,
		Prompt:      r.prompt,
		Snapshot:    snap,
	}
}

// completed ends the run. A completed snapshot replaces any earlier one so
// the store never keeps a stale resumable entry for a finished execution.
func (r *run) completed(ctx context.Context) (*RunResult, error) {
	if r.store != nil && (r.g.config.AutoCheckpoint || r.saved) {
		if _, err := r.checkpoint(ctx, StatusCompleted); err != nil {
			r.logger.Error("checkpoint failed", "execution_id", r.executionID, "error", err)
		}
	}
	return r.result(StatusCompleted, nil), nil
}

func (r *run) paused(ctx context.Context, yield func(StepResult) bool, step StepResult, prompt string) (*RunResult, error) {
	r.pausedAt = step.NodeID
	r.prompt = prompt
	step.Status = StatusPaused
	yield(step)

	snap, err := r.checkpoint(ctx, StatusPaused)
	if err != nil {
		return r.result(StatusPaused, snap), err
	}
	r.notify(ctx, notify.EventHumanInputRequired, step.NodeID, prompt, nil)
	return r.result(StatusPaused, snap), nil
}

// interrupted handles a stream consumer that stopped early. The run can be
// resumed from where it stopped.
func (r *run) interrupted(ctx context.Context) (*RunResult, error) {
	snap, err := r.checkpoint(ctx, StatusRunning)
	if err != nil {
		r.logger.Error("checkpoint failed", "execution_id", r.executionID, "error", err)
	}
	return r.result(StatusRunning, snap), nil
}

func (r *run) saveProgress(ctx context.Context) {
	if r.store == nil {
		r.logger.Warn("checkpoint requested but no store configured", "execution_id", r.executionID)
		return
	}
	if _, err := r.checkpoint(ctx, StatusRunning); err != nil {
		r.logger.Error("checkpoint failed", "execution_id", r.executionID, "error", err)
	}
}

func (r *run) stepLimit(ctx context.Context, err *StepLimitError) (*RunResult, error) {
	r.record(err.NodeID, ErrorKindStepLimit, err)
	return r.failed(ctx, err.NodeID, err)
}

func (r *run) failed(ctx context.Context, id string, err error) (*RunResult, error) {
	snap, cpErr := r.checkpoint(ctx, StatusFailed)
	if cpErr != nil {
		r.logger.Error("checkpoint failed", "execution_id", r.executionID, "error", cpErr)
	}
	return r.result(StatusFailed, snap), &RunError{
		ExecutionID: r.executionID,
		NodeID:      id,
		Errors:      slices.Clone(r.errors),
		Err:         err,
	}
}

func (r *run) cancelled(ctx context.Context, id string, executing bool, cause error) (*RunResult, error) {
	r.errors = append(r.errors, ExecutionError{
		NodeID:    id,
		Kind:      ErrorKindCancelled,
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
		Fatal:     true,
	})
	snap, err := r.checkpoint(ctx, StatusCancelled)
	if err != nil {
		r.logger.Error("checkpoint failed", "execution_id", r.executionID, "error", err)
	}
	return r.result(StatusCancelled, snap), &CancelledError{NodeID: id, Cause: cause, WasExecuting: executing}
}

// =============================================================================
// Lifecycle Reporting
// =============================================================================

func (r *run) started(ctx context.Context) {
	event := notify.EventRunStarted
	if r.resumed {
		event = notify.EventRunResumed
	}
	r.logger.Info("run started",
		"execution_id", r.executionID,
		"graph", r.g.name,
		"resumed", r.resumed,
	)
	r.notify(ctx, event, "", fmt.Sprintf("%s %s", r.g.name, event), nil)
	if r.g.config.AutoCheckpoint && r.store == nil && !r.nested {
		r.logger.Warn("auto checkpoint enabled but no store configured", "execution_id", r.executionID)
	}

	if m := r.deps.Transcripts; m != nil {
		if err := m.StartRun(r.executionID, transcript.RunMetadata{Graph: r.g.name, Input: r.input}); err != nil {
			r.logger.Warn("start transcript", "execution_id", r.executionID, "error", err)
		}
	}
}

func (r *run) finished(ctx context.Context, res *RunResult, err error) {
	cleanup := context.WithoutCancel(ctx)
	if cerr := r.sessions.closeAll(cleanup); cerr != nil {
		r.logger.Warn("close sessions", "execution_id", r.executionID, "error", cerr)
	}

	if m := r.deps.Transcripts; m != nil {
		status := transcript.RunStatus(res.Status)
		if res.Status == StatusRunning {
			status = transcript.RunStatusPaused
		}
		if terr := m.EndRun(r.executionID, status, err); terr != nil {
			r.logger.Warn("end transcript", "execution_id", r.executionID, "error", terr)
		}
	}

	attrs := []any{
		"execution_id", r.executionID,
		"graph", r.g.name,
		"status", res.Status,
		"steps", res.Steps,
	}
	switch res.Status {
	case StatusCompleted:
		r.logger.Info("run completed", attrs...)
		r.notify(ctx, notify.EventRunCompleted, "", "run completed", nil)
	case StatusPaused:
		r.logger.Info("run paused", append(attrs, "node_id", res.PausedAt)...)
		r.notify(ctx, notify.EventRunPaused, res.PausedAt, res.Prompt, nil)
	case StatusFailed:
		r.logger.Error("run failed", append(attrs, "error", err)...)
		r.notify(ctx, notify.EventRunFailed, failedNode(err), err.Error(), nil)
	case StatusCancelled:
		r.logger.Warn("run cancelled", append(attrs, "error", err)...)
		r.notify(ctx, notify.EventRunCancelled, failedNode(err), err.Error(), nil)
	case StatusRunning:
		r.logger.Info("run interrupted by consumer", attrs...)
	}
}

func (r *run) notify(ctx context.Context, t notify.EventType, nodeID, msg string, meta map[string]any) {
	n := r.deps.Notifier
	if n == nil {
		return
	}
	err := n.Notify(context.WithoutCancel(ctx), notify.Event{
		Type:        t,
		ExecutionID: r.executionID,
		Graph:       r.g.name,
		NodeID:      nodeID,
		Message:     msg,
		Severity:    notify.SeverityFor(t),
		Timestamp:   time.Now().UTC(),
		Metadata:    meta,
	})
	if err != nil {
		r.logger.Warn("notification failed", "execution_id", r.executionID, "event", t, "error", err)
	}
}
