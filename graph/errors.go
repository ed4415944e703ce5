package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for building and compiling.
var (
	// ErrBuilderMisuse indicates builder calls made in an invalid order.
	ErrBuilderMisuse = errors.New("invalid builder call sequence")

	// ErrNoStart indicates Start was never called.
	ErrNoStart = errors.New("start node not set")

	// ErrEmptyID indicates a node registered with an empty id.
	ErrEmptyID = errors.New("node id is empty")

	// ErrDuplicateNode indicates two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrNodeNotFound indicates a reference to a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoDefaultRoute indicates a decision without a default route.
	ErrNoDefaultRoute = errors.New("decision has no default route")

	// ErrInvalidParallel indicates a malformed parallel node.
	ErrInvalidParallel = errors.New("invalid parallel configuration")

	// ErrJoinPolicy indicates a parallel sub-agent node without an explicit join policy.
	ErrJoinPolicy = errors.New("parallel sub-agent join policy not set")

	// ErrLoopCeiling indicates a loop with neither until nor max iterations.
	ErrLoopCeiling = errors.New("loop requires until or max iterations")

	// ErrUnconditionedCycle indicates a cycle with no condition on any edge.
	ErrUnconditionedCycle = errors.New("cycle without condition or loop ceiling")

	// ErrAmbiguousEdges indicates more than one unconditional edge from a node.
	ErrAmbiguousEdges = errors.New("multiple unconditional edges")

	// ErrNoRoute indicates a non-terminal node without outgoing routes.
	ErrNoRoute = errors.New("non-terminal node has no outgoing route")

	// ErrUnreachable indicates a node that cannot be reached from start.
	ErrUnreachable = errors.New("node unreachable from start")

	// ErrNoEndNode indicates no end node is reachable from start.
	ErrNoEndNode = errors.New("no end node reachable from start")

	// ErrInvalidNode indicates a node factory received incomplete configuration.
	ErrInvalidNode = errors.New("invalid node configuration")
)

// Sentinel errors for execution.
var (
	// ErrStepLimit indicates the global step ceiling was reached.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrNoMatchingRoute indicates no outgoing edge matched at runtime.
	ErrNoMatchingRoute = errors.New("no outgoing edge matched")

	// ErrNotPaused indicates resume input was given for a snapshot that is not paused.
	ErrNotPaused = errors.New("snapshot is not paused")

	// ErrNotResumable indicates the snapshot describes a completed run.
	ErrNotResumable = errors.New("snapshot is not resumable")

	// ErrGraphMismatch indicates a snapshot saved by a different graph.
	ErrGraphMismatch = errors.New("snapshot belongs to a different graph")

	// ErrNoCheckpointStore indicates a store operation without a configured store.
	ErrNoCheckpointStore = errors.New("no checkpoint store configured")

	// ErrSubgraphPaused indicates a nested graph asked for human input.
	ErrSubgraphPaused = errors.New("subgraph paused for input")

	// ErrNoBridge indicates a sub-agent node ran without a spawn bridge.
	ErrNoBridge = errors.New("no sub-agent spawn bridge configured")

	// ErrNoRegistry indicates a sub-agent node ran without a type registry.
	ErrNoRegistry = errors.New("no sub-agent registry configured")

	// ErrStreamConsumed indicates a second iteration over a run stream.
	ErrStreamConsumed = errors.New("run stream already consumed")

	// ErrAllBranchesFailed indicates no branch of a parallel node succeeded.
	ErrAllBranchesFailed = errors.New("no parallel branch succeeded")

	// ErrBranchDiverged indicates a parallel branch routed to more than one node.
	ErrBranchDiverged = errors.New("parallel branch fanned out")
)

// =============================================================================
// Typed Errors
// =============================================================================

// ValidationError describes the first structural problem found in a graph.
type ValidationError struct {
	NodeID string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("graph validation")
	if e.NodeID != "" {
		fmt.Fprintf(&b, " at node %q", e.NodeID)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(nodeID string, err error, detail string, args ...any) *ValidationError {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &ValidationError{NodeID: nodeID, Err: err, Detail: detail}
}

// NodeExecutionError reports a node that failed after exhausting its attempts.
type NodeExecutionError struct {
	NodeID   string
	Attempts int
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempt(s): %v", e.NodeID, e.Attempts, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic recovered from a node.
type PanicError struct {
	NodeID string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// StepLimitError reports the global runaway guard firing.
type StepLimitError struct {
	Limit  int
	NodeID string
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("exceeded step limit (%d) before node %s", e.Limit, e.NodeID)
}

func (e *StepLimitError) Unwrap() error {
	return ErrStepLimit
}

// CancelledError reports that the run's context was cancelled.
type CancelledError struct {
	NodeID       string
	Cause        error
	WasExecuting bool
}

func (e *CancelledError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// RunError is returned when a run ends as failed. It carries every
// execution error recorded during the run.
type RunError struct {
	ExecutionID string
	NodeID      string
	Errors      []ExecutionError
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("execution %s failed at node %s: %v", e.ExecutionID, e.NodeID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Attempts returns the attempt count of the error that ended the run.
func (e *RunError) Attempts() int {
	var nodeErr *NodeExecutionError
	if errors.As(e.Err, &nodeErr) {
		return nodeErr.Attempts
	}
	return 0
}
