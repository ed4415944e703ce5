package graph

import (
	"fmt"

	"github.com/randalmurphal/agentgraph/state"
)

// EdgeKind describes how an edge was declared.
type EdgeKind string

// Edge kinds.
const (
	EdgeNext        EdgeKind = "next"        // unconditional, from Then or Connect
	EdgeConditional EdgeKind = "conditional" // guarded by a condition
	EdgeLoop        EdgeKind = "loop"        // loop back-edge from tail to head
	EdgeRoute       EdgeKind = "route"       // decision route
	EdgeBranch      EdgeKind = "branch"      // parallel fan-out to a branch head
)

// Edge is a possible transition between two nodes.
type Edge struct {
	From      string
	To        string
	Condition Condition
	Priority  int
	Kind      EdgeKind
}

// Conditional reports whether the edge carries a condition.
func (e Edge) Conditional() bool { return e.Condition != nil }

// EdgeOption configures Connect.
type EdgeOption func(*Edge)

// WithCondition guards the edge. Guarded edges are tried before the
// unconditional fallback.
func WithCondition(c Condition) EdgeOption {
	return func(e *Edge) { e.Condition = c }
}

// WithPriority orders guarded edges. Higher priority is evaluated first;
// equal priorities keep declaration order.
func WithPriority(p int) EdgeOption {
	return func(e *Edge) { e.Priority = p }
}

// LoopConfig bounds a loop. At least one of Until and MaxIterations is
// required.
type LoopConfig struct {
	// Until ends the loop once it holds after an iteration.
	Until Condition

	// MaxIterations caps iterations. 0 means no cap, which requires Until.
	MaxIterations int
}

type loopSpec struct {
	head  string
	tail  string
	until Condition
	max   int
}

// =============================================================================
// Builder
// =============================================================================

// Builder assembles a graph. Calls are chained; the first misuse is recorded
// and reported by Compile, so chains never need intermediate error checks.
//
//	g, err := graph.NewBuilder("review", schema).
//	    Start(plan).
//	    Loop([]graph.Node{implement, review}, graph.LoopConfig{Until: approved, MaxIterations: 5}).
//	    Then(publish).
//	    End().
//	    Compile()
type Builder struct {
	name   string
	schema state.Schema

	nodes map[string]Node
	order []string
	edges []Edge
	start string
	ends  map[string]bool
	catch string
	loops map[string]loopSpec // keyed by tail

	cursor  string
	pending *pendingEdge
	ifs     []*ifFrame

	errs []error
}

// pendingEdge is an If or Else arm waiting for its first node.
type pendingEdge struct {
	from string
	cond Condition
}

type ifFrame struct {
	origin    string
	cond      Condition
	thenTail  string
	thenEmpty bool
	inElse    bool
}

// NewBuilder starts a graph named name over schema.
func NewBuilder(name string, schema state.Schema) *Builder {
	if schema == nil {
		schema = state.Schema{}
	}
	return &Builder{
		name:   name,
		schema: schema,
		nodes:  make(map[string]Node),
		ends:   make(map[string]bool),
		loops:  make(map[string]loopSpec),
	}
}

func (b *Builder) misuse(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrBuilderMisuse, fmt.Sprintf(format, args...)))
}

func (b *Builder) register(n Node) bool {
	if n == nil {
		b.misuse("nil node")
		return false
	}
	id := n.ID()
	if id == "" {
		b.errs = append(b.errs, invalid("", ErrEmptyID, "kind %s", n.Kind()))
		return false
	}
	if _, ok := b.nodes[id]; ok {
		b.errs = append(b.errs, invalid(id, ErrDuplicateNode, ""))
		return false
	}
	b.nodes[id] = n
	b.order = append(b.order, id)
	return true
}

// link connects the cursor, or the pending If/Else arm, to id.
func (b *Builder) link(id string) bool {
	if p := b.pending; p != nil {
		b.pending = nil
		kind := EdgeNext
		if p.cond != nil {
			kind = EdgeConditional
		}
		b.edges = append(b.edges, Edge{From: p.from, To: id, Condition: p.cond, Kind: kind})
		return true
	}
	if b.cursor == "" {
		b.misuse("%s added before Start", id)
		return false
	}
	if b.ends[b.cursor] {
		b.misuse("%s follows end node %s", id, b.cursor)
		return false
	}
	b.edges = append(b.edges, Edge{From: b.cursor, To: id, Kind: EdgeNext})
	return true
}

// Start sets the entry node and the cursor. It may be called once.
func (b *Builder) Start(n Node) *Builder {
	if b.start != "" {
		b.misuse("Start called twice")
		return b
	}
	if !b.register(n) {
		return b
	}
	b.start = n.ID()
	b.cursor = n.ID()
	return b
}

// Then adds n after the cursor and moves the cursor to it.
func (b *Builder) Then(n Node) *Builder {
	if b.cursor == "" && b.pending == nil {
		b.misuse("Then called before Start")
		return b
	}
	if !b.register(n) {
		return b
	}
	if b.link(n.ID()) {
		b.cursor = n.ID()
	}
	return b
}

// Add registers n without connecting it or moving the cursor. Connect it
// with Connect, a decision route or Cursor.
func (b *Builder) Add(n Node) *Builder {
	b.register(n)
	return b
}

// Cursor moves the construction cursor to an already added node.
func (b *Builder) Cursor(id string) *Builder {
	if _, ok := b.nodes[id]; !ok {
		b.errs = append(b.errs, invalid(id, ErrNodeNotFound, "cursor target"))
		return b
	}
	if b.pending != nil {
		b.misuse("Cursor called inside an empty If/Else arm")
		return b
	}
	b.cursor = id
	return b
}

// Connect adds an edge between two nodes without moving the cursor.
func (b *Builder) Connect(from, to string, opts ...EdgeOption) *Builder {
	e := Edge{From: from, To: to, Kind: EdgeNext}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Condition != nil {
		e.Kind = EdgeConditional
	}
	b.edges = append(b.edges, e)
	return b
}

// End marks the cursor as a terminal node.
func (b *Builder) End() *Builder {
	if b.cursor == "" || b.pending != nil {
		b.misuse("End called without a node")
		return b
	}
	b.ends[b.cursor] = true
	return b
}

// Catch registers the node runs are routed to when a node exhausts its
// retries. The cursor moves to the handler so its chain can be built.
func (b *Builder) Catch(handler Node) *Builder {
	if b.catch != "" {
		b.misuse("Catch called twice")
		return b
	}
	if !b.register(handler) {
		return b
	}
	b.catch = handler.ID()
	b.cursor = handler.ID()
	b.pending = nil
	return b
}

// Wait adds a wait node after the cursor.
func (b *Builder) Wait(id string, cfg WaitConfig, opts ...NodeOption) *Builder {
	return b.Then(Wait(id, cfg, opts...))
}

// Loop adds body after the cursor and wires a back-edge from its last node
// to its first. After each pass the loop repeats while Until does not hold
// and the run's iteration count is below MaxIterations. The cursor ends on
// the last body node, so the next Then adds the loop exit.
func (b *Builder) Loop(body []Node, cfg LoopConfig) *Builder {
	if len(body) == 0 {
		b.misuse("Loop with empty body")
		return b
	}
	for _, n := range body {
		if !b.Then(n).ok() {
			return b
		}
	}
	head, tail := body[0].ID(), body[len(body)-1].ID()
	if _, ok := b.loops[tail]; ok {
		b.misuse("node %s already closes a loop", tail)
		return b
	}
	b.loops[tail] = loopSpec{head: head, tail: tail, until: cfg.Until, max: cfg.MaxIterations}
	b.edges = append(b.edges, Edge{From: tail, To: head, Kind: EdgeLoop})
	return b
}

func (b *Builder) ok() bool { return len(b.errs) == 0 }

// Parallel adds a parallel node id after the cursor. Each branch is a chain
// of nodes; all branches meet at a join node "<id>_join", which becomes the
// cursor.
func (b *Builder) Parallel(id string, branches [][]Node, cfg ParallelConfig, opts ...NodeOption) *Builder {
	p := &ParallelNode{
		nodeBase: newBase(id, KindParallel, opts),
		strategy: cfg.Strategy,
		join:     id + "_join",
	}
	if !b.register(p) || !b.link(id) {
		return b
	}
	join := newJoin(p.join)
	if !b.register(join) {
		return b
	}

	for i, branch := range branches {
		if len(branch) == 0 {
			b.errs = append(b.errs, invalid(id, ErrInvalidParallel, "branch %d is empty", i))
			return b
		}
		prev := ""
		for _, n := range branch {
			if !b.register(n) {
				return b
			}
			if prev == "" {
				p.heads = append(p.heads, n.ID())
				b.edges = append(b.edges, Edge{From: id, To: n.ID(), Kind: EdgeBranch})
			} else {
				b.edges = append(b.edges, Edge{From: prev, To: n.ID(), Kind: EdgeNext})
			}
			prev = n.ID()
		}
		b.edges = append(b.edges, Edge{From: prev, To: join.ID(), Kind: EdgeNext})
	}
	b.cursor = join.ID()
	return b
}

// If opens a conditional section at the cursor. The next node added is
// reached when cond holds.
func (b *Builder) If(cond Condition) *Builder {
	if b.cursor == "" || b.pending != nil {
		b.misuse("If called without a node to branch from")
		return b
	}
	if cond == nil {
		b.misuse("If with nil condition")
		return b
	}
	b.ifs = append(b.ifs, &ifFrame{origin: b.cursor, cond: cond})
	b.pending = &pendingEdge{from: b.cursor, cond: cond}
	return b
}

// Else switches to the arm taken when the If condition does not hold.
func (b *Builder) Else() *Builder {
	f := b.topIf()
	if f == nil || f.inElse {
		b.misuse("Else without a matching If")
		return b
	}
	f.thenEmpty = b.pending != nil
	f.thenTail = b.cursor
	f.inElse = true
	b.cursor = f.origin
	b.pending = &pendingEdge{from: f.origin}
	return b
}

// EndIf closes the conditional section. Both arms continue at a join node
// that becomes the cursor; arms ended with End do not.
func (b *Builder) EndIf() *Builder {
	f := b.topIf()
	if f == nil {
		b.misuse("EndIf without a matching If")
		return b
	}
	b.ifs = b.ifs[:len(b.ifs)-1]

	var elseTail string
	elseEmpty := true
	if f.inElse {
		elseEmpty = b.pending != nil
		elseTail = b.cursor
	} else {
		f.thenEmpty = b.pending != nil
		f.thenTail = b.cursor
	}
	b.pending = nil

	var incoming []Edge
	switch {
	case f.thenEmpty:
		incoming = append(incoming, Edge{From: f.origin, Condition: f.cond, Kind: EdgeConditional})
	case !b.ends[f.thenTail]:
		incoming = append(incoming, Edge{From: f.thenTail, Kind: EdgeNext})
	}
	switch {
	case elseEmpty:
		incoming = append(incoming, Edge{From: f.origin, Kind: EdgeNext})
	case !b.ends[elseTail]:
		incoming = append(incoming, Edge{From: elseTail, Kind: EdgeNext})
	}
	if len(incoming) == 0 {
		// Both arms end the run; nothing follows.
		b.cursor = ""
		return b
	}

	join := newJoin(b.joinID(f.origin))
	b.register(join)
	for _, e := range incoming {
		e.To = join.ID()
		b.edges = append(b.edges, e)
	}
	b.cursor = join.ID()
	return b
}

func (b *Builder) topIf() *ifFrame {
	if len(b.ifs) == 0 {
		return nil
	}
	return b.ifs[len(b.ifs)-1]
}

func (b *Builder) joinID(origin string) string {
	id := origin + "_endif"
	for i := 2; ; i++ {
		if _, ok := b.nodes[id]; !ok {
			return id
		}
		id = fmt.Sprintf("%s_endif%d", origin, i)
	}
}

// Validate checks the graph without compiling it.
func (b *Builder) Validate() error {
	_, err := b.build(defaultConfig())
	return err
}

// Compile validates the graph and freezes it. The builder may be reused
// afterwards; the compiled graph does not change with it.
func (b *Builder) Compile(opts ...CompileOption) (*CompiledGraph, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return b.build(cfg)
}
