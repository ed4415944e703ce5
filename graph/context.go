package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/agentgraph/agent"
	"github.com/randalmurphal/agentgraph/state"
	"github.com/randalmurphal/agentgraph/transcript"
)

// ExecutionContext is what a node sees while it runs. It embeds the run's
// context.Context, so cancellation and deadlines reach every collaborator a
// node passes it to.
type ExecutionContext struct {
	context.Context

	ExecutionID string
	Graph       string
	NodeID      string

	// Attempt is 1 on the first try and increases with each retry.
	Attempt int

	// State is a copy of the run state. Changing it has no effect; return a
	// NodeResult update instead.
	State state.State

	// Errors holds the execution errors recorded so far in the run.
	Errors []ExecutionError

	deps     RuntimeDependencies
	config   Config
	sessions *sessionPool
	brancher brancher

	mu      sync.Mutex
	signals []Signal
	nested  []ExecutionError
}

// brancher runs the branches of a parallel node. The executor provides it.
type brancher interface {
	fork(ec *ExecutionContext, p *ParallelNode) (NodeResult, error)
}

// NewExecutionContext builds a context for running a node outside a compiled
// graph, as node unit tests do.
func NewExecutionContext(ctx context.Context, nodeID string, st state.State, deps RuntimeDependencies) *ExecutionContext {
	return &ExecutionContext{
		Context:     ctx,
		ExecutionID: st.ExecutionID,
		NodeID:      nodeID,
		Attempt:     1,
		State:       st.Clone(),
		deps:        deps,
		config:      defaultConfig(),
		sessions:    newSessionPool(deps.Sessions),
	}
}

// Emit records a signal for the executor. It is safe to call from
// goroutines the node starts.
func (ec *ExecutionContext) Emit(sig Signal) {
	ec.mu.Lock()
	ec.signals = append(ec.signals, sig)
	ec.mu.Unlock()
}

func (ec *ExecutionContext) drainSignals() []Signal {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := ec.signals
	ec.signals = nil
	return out
}

// addNested records errors from work the node ran on the executor's behalf,
// such as parallel branches.
func (ec *ExecutionContext) addNested(errs []ExecutionError) {
	ec.mu.Lock()
	ec.nested = append(ec.nested, errs...)
	ec.mu.Unlock()
}

func (ec *ExecutionContext) takeNested() []ExecutionError {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := ec.nested
	ec.nested = nil
	return out
}

// NodeOutput returns the recorded output of a node that already ran.
func (ec *ExecutionContext) NodeOutput(nodeID string) (any, bool) {
	return ec.State.Output(nodeID)
}

// Session returns the run's agent session for key, creating it with cfg on
// first use.
func (ec *ExecutionContext) Session(key string, cfg agent.Config) (agent.Session, error) {
	return ec.sessions.get(ec, key, cfg)
}

// ClearSession destroys the session for key. The next agent node using the
// key starts a fresh conversation.
func (ec *ExecutionContext) ClearSession(key string) error {
	return ec.sessions.clear(ec, key)
}

// ContextUsage reports token usage of the session for key. ok is false when
// the session does not exist yet or does not track usage.
func (ec *ExecutionContext) ContextUsage(key string) (agent.Usage, bool) {
	return ec.sessions.usage(key)
}

// Deps returns the run's collaborators.
func (ec *ExecutionContext) Deps() RuntimeDependencies {
	return ec.deps
}

// Logger returns a logger scoped to this node.
func (ec *ExecutionContext) Logger() *slog.Logger {
	return ec.deps.logger().With(
		"execution_id", ec.ExecutionID,
		"node_id", ec.NodeID,
		"attempt", ec.Attempt,
	)
}

// LastError returns the most recent execution error, as catch handlers read it.
func (ec *ExecutionContext) LastError() (ExecutionError, bool) {
	if len(ec.Errors) == 0 {
		return ExecutionError{}, false
	}
	return ec.Errors[len(ec.Errors)-1], true
}

// recordTurn appends to the run transcript when a manager is configured.
// Recording failures are logged, never returned.
func (ec *ExecutionContext) recordTurn(session, role, content string, usage agent.Usage, elapsed time.Duration) {
	m := ec.deps.Transcripts
	if m == nil {
		return
	}
	turn := transcript.Turn{
		NodeID:     ec.NodeID,
		Session:    session,
		Role:       role,
		Content:    content,
		TokensIn:   usage.InputTokens,
		TokensOut:  usage.OutputTokens,
		DurationMs: elapsed.Milliseconds(),
	}
	if err := m.RecordTurn(ec.ExecutionID, turn); err != nil {
		ec.Logger().Warn("record transcript turn", "error", err)
	}
}
