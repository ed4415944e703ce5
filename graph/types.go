package graph

import (
	"math"
	"time"

	"github.com/randalmurphal/agentgraph/state"
)

// NodeKind identifies what a node does.
type NodeKind string

// Node kinds.
const (
	KindAgent        NodeKind = "agent"
	KindTool         NodeKind = "tool"
	KindSubagent     NodeKind = "subagent"
	KindDecision     NodeKind = "decision"
	KindWait         NodeKind = "wait"
	KindAskUser      NodeKind = "ask_user"
	KindParallel     NodeKind = "parallel"
	KindSubgraph     NodeKind = "subgraph"
	KindHousekeeping NodeKind = "housekeeping"

	// KindJoin marks the synthetic nodes the builder inserts where branches meet.
	KindJoin NodeKind = "join"
)

// Status is the status of a step or a run.
type Status string

// Status values.
const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// =============================================================================
// Signals
// =============================================================================

// SignalType identifies an out-of-band event emitted by a node.
type SignalType string

// Signal types.
const (
	SignalCheckpointRequested  SignalType = "checkpoint_requested"
	SignalHumanInputRequired   SignalType = "human_input_required"
	SignalContextWindowWarning SignalType = "context_window_warning"
	SignalCustom               SignalType = "custom"
)

// SignalContextReset is the Name of the custom signal a context-clear node emits.
const SignalContextReset = "context_reset"

// Signal is a typed event the executor interprets.
type Signal struct {
	Type    SignalType     `json:"type"`
	Name    string         `json:"name,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// HumanInput builds a human_input_required signal carrying prompt.
func HumanInput(prompt string) Signal {
	return Signal{Type: SignalHumanInputRequired, Payload: map[string]any{"prompt": prompt}}
}

// CheckpointRequested builds a checkpoint_requested signal.
func CheckpointRequested() Signal {
	return Signal{Type: SignalCheckpointRequested}
}

// Custom builds a custom signal.
func Custom(name string, payload map[string]any) Signal {
	return Signal{Type: SignalCustom, Name: name, Payload: payload}
}

func (s Signal) prompt() string {
	p, _ := s.Payload["prompt"].(string)
	return p
}

// =============================================================================
// Results
// =============================================================================

// NodeResult is what a node returns from Execute.
type NodeResult struct {
	// Update is merged into state through the field reducers.
	Update map[string]any `json:"update,omitempty"`

	// Output is recorded under state.Outputs[nodeID]. When nil, Update is
	// recorded instead.
	Output any `json:"output,omitempty"`

	// Goto, when set, replaces edge resolution for this step. More than one
	// id fans out through the work queue.
	Goto []string `json:"goto,omitempty"`

	Signals []Signal `json:"signals,omitempty"`

	fork *forkResult
}

// Goto returns a result that routes to ids.
func Goto(ids ...string) NodeResult {
	return NodeResult{Goto: ids}
}

// Update returns a result carrying a state update.
func Update(update map[string]any) NodeResult {
	return NodeResult{Update: update}
}

func (r NodeResult) recordedOutput() any {
	if r.Output != nil {
		return r.Output
	}
	return r.Update
}

func (r NodeResult) signal(t SignalType) (Signal, bool) {
	for _, s := range r.Signals {
		if s.Type == t {
			return s, true
		}
	}
	return Signal{}, false
}

// ErrorKind classifies an ExecutionError.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNode      ErrorKind = "node_execution"
	ErrorKindPanic     ErrorKind = "panic"
	ErrorKindState     ErrorKind = "state"
	ErrorKindRouting   ErrorKind = "routing"
	ErrorKindLoopLimit ErrorKind = "loop_limit_exceeded"
	ErrorKindStepLimit ErrorKind = "step_limit_exceeded"
	ErrorKindCancelled ErrorKind = "cancelled"
)

// ExecutionError records one failure during a run.
type ExecutionError struct {
	NodeID    string    `json:"node_id"`
	Attempt   int       `json:"attempt"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Fatal is set on the error that ended a node's attempts.
	Fatal bool `json:"fatal"`
}

// StepResult is one unit of progress.
type StepResult struct {
	Step   int         `json:"step"`
	NodeID string      `json:"node_id"`
	Kind   NodeKind    `json:"kind"`
	State  state.State `json:"state"`
	Result *NodeResult `json:"result,omitempty"`
	Status Status      `json:"status"`

	// Branch is the id of the parallel node whose branch produced this step.
	Branch string `json:"branch,omitempty"`

	// Err is set when the node failed and the run continued at the catch node.
	Err error `json:"-"`
}

// =============================================================================
// Retry
// =============================================================================

// RetryPolicy configures per-node retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
	Multiplier  float64       `json:"multiplier"`
}

// Attempts returns MaxAttempts, at least 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retrying after the given failed attempt
// (1-based): Backoff * Multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff <= 0 || attempt < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.Backoff) * math.Pow(mult, float64(attempt-1)))
}
