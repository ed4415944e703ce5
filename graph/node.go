package graph

// Node is one unit of work. The set of node kinds is closed: nodes are built
// by the factories in this package (Agent, Tool, Func, Subagent, Decision,
// Wait, AskUser, Subgraph, ContextMonitor, ContextClear) and by the builder
// (Parallel, joins).
type Node interface {
	ID() string
	Kind() NodeKind

	// Execute runs the node once. It must return promptly when the
	// context is cancelled.
	Execute(ec *ExecutionContext) (NodeResult, error)

	base() *nodeBase
}

// nodeBase holds what every node carries regardless of kind.
type nodeBase struct {
	id          string
	kind        NodeKind
	name        string
	description string
	retry       *RetryPolicy
	gotoTargets []string
}

func newBase(id string, kind NodeKind, opts []NodeOption) nodeBase {
	b := nodeBase{id: id, kind: kind}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// ID returns the node id.
func (b *nodeBase) ID() string { return b.id }

// Kind returns the node kind.
func (b *nodeBase) Kind() NodeKind { return b.kind }

// Name returns the display name, or the id when none was set.
func (b *nodeBase) Name() string {
	if b.name != "" {
		return b.name
	}
	return b.id
}

// Description returns the node description.
func (b *nodeBase) Description() string { return b.description }

// Retry returns the node's own retry policy, if it has one.
func (b *nodeBase) Retry() (RetryPolicy, bool) {
	if b.retry == nil {
		return RetryPolicy{}, false
	}
	return *b.retry, true
}

func (b *nodeBase) base() *nodeBase { return b }

// NodeOption configures the attributes shared by all nodes.
type NodeOption func(*nodeBase)

// WithRetry sets the node's retry policy, overriding the graph default.
func WithRetry(p RetryPolicy) NodeOption {
	return func(b *nodeBase) { b.retry = &p }
}

// WithName sets a display name.
func WithName(name string) NodeOption {
	return func(b *nodeBase) { b.name = name }
}

// WithDescription sets a description.
func WithDescription(desc string) NodeOption {
	return func(b *nodeBase) { b.description = desc }
}

// WithGotoTargets declares the ids a node may route to through
// NodeResult.Goto. Compile checks they exist and counts them as reachable.
func WithGotoTargets(ids ...string) NodeOption {
	return func(b *nodeBase) { b.gotoTargets = append(b.gotoTargets, ids...) }
}

// validator is implemented by nodes that check their own configuration at
// compile time.
type validator interface {
	validate() error
}

// inputMapper is implemented by nodes that pause for human input and merge
// the reply on resume.
type inputMapper interface {
	mapInput(ec *ExecutionContext, input any) (map[string]any, error)
}

// =============================================================================
// Join
// =============================================================================

// joinNode is the synthetic node where parallel branches or if/else arms
// meet. It does nothing.
type joinNode struct {
	nodeBase
}

func newJoin(id string) *joinNode {
	return &joinNode{nodeBase: nodeBase{id: id, kind: KindJoin}}
}

func (n *joinNode) Execute(*ExecutionContext) (NodeResult, error) {
	return NodeResult{}, nil
}
