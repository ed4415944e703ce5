package graph

import (
	"fmt"
	"slices"
)

// Strategy is how a parallel node joins its branches.
type Strategy string

// Join strategies.
const (
	// StrategyAll waits for every branch and fails when any branch fails.
	StrategyAll Strategy = "all"

	// StrategyAny waits for every branch and merges the ones that succeeded.
	// It fails only when all branches fail.
	StrategyAny Strategy = "any"

	// StrategyRace merges the first branch to succeed and cancels the rest.
	StrategyRace Strategy = "race"
)

// ParallelConfig configures Builder.Parallel.
type ParallelConfig struct {
	Strategy Strategy
}

// ParallelNode fans out to branch entry nodes and joins them. Builder.Parallel
// creates it together with its join node.
type ParallelNode struct {
	nodeBase
	strategy Strategy
	heads    []string
	join     string
}

// Strategy returns the join strategy.
func (n *ParallelNode) Strategy() Strategy { return n.strategy }

// Branches returns the entry node id of each branch in declaration order.
func (n *ParallelNode) Branches() []string { return slices.Clone(n.heads) }

// JoinID returns the id of the node the branches meet at.
func (n *ParallelNode) JoinID() string { return n.join }

// Execute implements Node. Branches run concurrently on copies of state and
// their updates are merged in declaration order.
func (n *ParallelNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	if ec.brancher == nil {
		return NodeResult{}, fmt.Errorf("%w: parallel %s must run inside a compiled graph", ErrInvalidParallel, n.id)
	}
	return ec.brancher.fork(ec, n)
}

func (n *ParallelNode) validate() error {
	switch n.strategy {
	case StrategyAll, StrategyAny, StrategyRace:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidParallel, n.strategy)
	}
	if len(n.heads) == 0 {
		return fmt.Errorf("%w: no branches", ErrInvalidParallel)
	}
	return nil
}
