package graph

import (
	"errors"
	"maps"
	"slices"

	"github.com/randalmurphal/agentgraph/state"
)

// CompiledGraph is the immutable, validated form of a graph. One compiled
// graph serves any number of concurrent runs.
type CompiledGraph struct {
	name   string
	schema state.Schema
	config Config

	nodes map[string]Node
	order []string
	edges []Edge
	out   map[string][]Edge
	in    map[string][]Edge
	start string
	ends  map[string]bool
	catch string
	loops map[string]loopSpec
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// StartNode returns the entry node id.
func (g *CompiledGraph) StartNode() string { return g.start }

// EndNodes returns the terminal node ids, sorted.
func (g *CompiledGraph) EndNodes() []string {
	return slices.Sorted(maps.Keys(g.ends))
}

// IsEnd reports whether id is a terminal node.
func (g *CompiledGraph) IsEnd(id string) bool { return g.ends[id] }

// CatchNode returns the failure handler id, or "".
func (g *CompiledGraph) CatchNode() string { return g.catch }

// NodeIDs returns node ids in declaration order.
func (g *CompiledGraph) NodeIDs() []string { return slices.Clone(g.order) }

// Node returns the node with id.
func (g *CompiledGraph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edges returns every edge in declaration order. Decision routes are
// included as route edges.
func (g *CompiledGraph) Edges() []Edge { return slices.Clone(g.edges) }

// Successors returns the distinct targets of id's outgoing edges.
func (g *CompiledGraph) Successors(id string) []string {
	return distinct(g.out[id], func(e Edge) string { return e.To })
}

// Predecessors returns the distinct sources of id's incoming edges.
func (g *CompiledGraph) Predecessors(id string) []string {
	return distinct(g.in[id], func(e Edge) string { return e.From })
}

// Schema returns the state schema.
func (g *CompiledGraph) Schema() state.Schema { return g.schema }

// Config returns the frozen settings.
func (g *CompiledGraph) Config() Config { return g.config }

func distinct(edges []Edge, key func(Edge) string) []string {
	var out []string
	for _, e := range edges {
		if k := key(e); !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

func (b *Builder) build(cfg Config) (*CompiledGraph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.start == "" {
		return nil, invalid("", ErrNoStart, "")
	}
	if len(b.ifs) > 0 {
		return nil, invalid(b.ifs[len(b.ifs)-1].origin, ErrBuilderMisuse, "If without EndIf")
	}

	g := &CompiledGraph{
		name:   b.name,
		schema: b.schema,
		config: cfg,
		nodes:  maps.Clone(b.nodes),
		order:  slices.Clone(b.order),
		out:    make(map[string][]Edge),
		in:     make(map[string][]Edge),
		start:  b.start,
		ends:   maps.Clone(b.ends),
		catch:  b.catch,
		loops:  maps.Clone(b.loops),
	}

	for _, id := range g.order {
		if v, ok := g.nodes[id].(validator); ok {
			if err := v.validate(); err != nil {
				return nil, asValidation(id, err)
			}
		}
	}

	g.edges = slices.Clone(b.edges)
	for _, id := range g.order {
		d, ok := g.nodes[id].(*DecisionNode)
		if !ok {
			continue
		}
		for _, r := range d.routes {
			g.edges = append(g.edges, Edge{From: id, To: r.To, Condition: r.When, Kind: EdgeRoute})
		}
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, invalid(e.From, ErrNodeNotFound, "edge source (edge to %s)", e.To)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, invalid(e.From, ErrNodeNotFound, "edge target %s", e.To)
		}
		g.out[e.From] = append(g.out[e.From], e)
		g.in[e.To] = append(g.in[e.To], e)
	}

	checks := []func() error{
		g.checkGotoTargets,
		g.checkExits,
		g.checkLoops,
		g.checkParallel,
		g.checkCycles,
		g.checkReachable,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func asValidation(id string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return &ValidationError{NodeID: id, Err: err}
}

func (g *CompiledGraph) checkGotoTargets() error {
	for _, id := range g.order {
		for _, t := range g.nodes[id].base().gotoTargets {
			if _, ok := g.nodes[t]; !ok {
				return invalid(id, ErrNodeNotFound, "goto target %s", t)
			}
		}
	}
	return nil
}

// checkExits rejects ambiguous and missing exits.
func (g *CompiledGraph) checkExits() error {
	for _, id := range g.order {
		n := g.nodes[id]
		edges := g.out[id]

		if _, ok := n.(*DecisionNode); ok {
			for _, e := range edges {
				if e.Kind != EdgeRoute {
					return invalid(id, ErrAmbiguousEdges, "decision routes are its only exits, found edge to %s", e.To)
				}
			}
			continue
		}

		unconditional, exits := 0, 0
		for _, e := range edges {
			if e.Kind == EdgeNext {
				unconditional++
			}
			if e.Kind != EdgeLoop {
				exits++
			}
		}
		if unconditional > 1 {
			return invalid(id, ErrAmbiguousEdges, "%d unconditional edges", unconditional)
		}
		if exits == 0 && !g.ends[id] && len(n.base().gotoTargets) == 0 {
			return invalid(id, ErrNoRoute, "")
		}
	}
	return nil
}

func (g *CompiledGraph) checkLoops() error {
	for _, tail := range slices.Sorted(maps.Keys(g.loops)) {
		l := g.loops[tail]
		if l.max < 0 || (l.max == 0 && l.until == nil) {
			return invalid(l.head, ErrLoopCeiling, "")
		}
	}
	return nil
}

// checkParallel rejects branches that could pause, since branches run as
// one atomic step.
func (g *CompiledGraph) checkParallel() error {
	for _, id := range g.order {
		p, ok := g.nodes[id].(*ParallelNode)
		if !ok {
			continue
		}
		for _, head := range p.heads {
			seen := map[string]bool{p.join: true}
			stack := []string{head}
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if seen[cur] {
					continue
				}
				seen[cur] = true
				switch g.nodes[cur].Kind() {
				case KindWait, KindAskUser:
					return invalid(id, ErrInvalidParallel, "branch node %s waits for input", cur)
				}
				stack = append(stack, g.Successors(cur)...)
			}
		}
	}
	return nil
}

// checkCycles rejects cycles no run could leave. A node has a forced
// successor when its only way on is a single unconditional edge: it is not
// a decision, parallel, end or loop tail, has no guarded edges and declares
// no goto targets. A cycle made only of forced successors never ends.
func (g *CompiledGraph) checkCycles() error {
	forced := make(map[string]string)
	for _, id := range g.order {
		n := g.nodes[id]
		switch n.(type) {
		case *DecisionNode, *ParallelNode:
			continue
		}
		if g.ends[id] || len(n.base().gotoTargets) > 0 {
			continue
		}
		if _, ok := g.loops[id]; ok {
			continue
		}
		next := ""
		guarded := false
		for _, e := range g.out[id] {
			switch {
			case e.Kind == EdgeNext:
				next = e.To
			case e.Conditional():
				guarded = true
			}
		}
		if !guarded && next != "" {
			forced[id] = next
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	color := make(map[string]int)
	for _, id := range g.order {
		var path []string
		cur := id
		for {
			if color[cur] == visiting {
				return invalid(cur, ErrUnconditionedCycle, "cycle %v", cycleFrom(path, cur))
			}
			if color[cur] == done {
				break
			}
			color[cur] = visiting
			path = append(path, cur)
			next, ok := forced[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, p := range path {
			color[p] = done
		}
	}
	return nil
}

func cycleFrom(path []string, start string) []string {
	i := slices.Index(path, start)
	if i < 0 {
		return path
	}
	return append(slices.Clone(path[i:]), start)
}

func (g *CompiledGraph) checkReachable() error {
	reached := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if reached[id] {
			return
		}
		reached[id] = true
		for _, e := range g.out[id] {
			walk(e.To)
		}
		for _, t := range g.nodes[id].base().gotoTargets {
			walk(t)
		}
		if p, ok := g.nodes[id].(*ParallelNode); ok {
			walk(p.join)
		}
	}
	walk(g.start)

	endReached := false
	for id := range g.ends {
		if reached[id] {
			endReached = true
			break
		}
	}
	if !endReached {
		return invalid(g.start, ErrNoEndNode, "")
	}

	if g.catch != "" {
		walk(g.catch)
	}
	var unreachable []string
	for _, id := range g.order {
		if !reached[id] {
			unreachable = append(unreachable, id)
		}
	}
	if len(unreachable) > 0 {
		return invalid(unreachable[0], ErrUnreachable, "unreachable: %v", unreachable)
	}
	return nil
}
