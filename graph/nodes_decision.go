package graph

import (
	"fmt"

	"github.com/randalmurphal/agentgraph/state"
)

// Condition is a predicate over run state.
type Condition func(s state.State) bool

// Route is one (predicate, target) pair of a decision.
type Route struct {
	When Condition
	To   string
}

// When builds a conditional route.
func When(cond Condition, to string) Route {
	return Route{When: cond, To: to}
}

// Otherwise builds the default route. It must be the last route.
func Otherwise(to string) Route {
	return Route{To: to}
}

func (r Route) isDefault() bool { return r.When == nil }

// DecisionNode routes on state: the first route whose predicate holds wins.
type DecisionNode struct {
	nodeBase
	routes []Route
}

// Decision creates a routing node. It performs no work and leaves state
// untouched.
func Decision(id string, routes ...Route) *DecisionNode {
	return &DecisionNode{nodeBase: nodeBase{id: id, kind: KindDecision}, routes: routes}
}

// WithOptions applies node options and returns n.
func (n *DecisionNode) WithOptions(opts ...NodeOption) *DecisionNode {
	for _, opt := range opts {
		opt(&n.nodeBase)
	}
	return n
}

// Routes returns the configured routes.
func (n *DecisionNode) Routes() []Route {
	return append([]Route(nil), n.routes...)
}

// Execute implements Node.
func (n *DecisionNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	target, err := n.route(ec.State)
	if err != nil {
		return NodeResult{}, err
	}
	return NodeResult{Goto: []string{target}, Output: target}, nil
}

func (n *DecisionNode) route(s state.State) (string, error) {
	for _, r := range n.routes {
		if r.isDefault() || r.When(s) {
			return r.To, nil
		}
	}
	return "", fmt.Errorf("%w: decision %s", ErrNoMatchingRoute, n.id)
}

func (n *DecisionNode) validate() error {
	if len(n.routes) == 0 || !n.routes[len(n.routes)-1].isDefault() {
		return ErrNoDefaultRoute
	}
	for i, r := range n.routes[:len(n.routes)-1] {
		if r.isDefault() {
			return fmt.Errorf("%w: default route at position %d is not last", ErrNoDefaultRoute, i)
		}
	}
	for _, r := range n.routes {
		if r.To == "" {
			return fmt.Errorf("%w: route with empty target", ErrInvalidNode)
		}
	}
	return nil
}
