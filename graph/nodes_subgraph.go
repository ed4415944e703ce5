package graph

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/agentgraph/state"
)

// SubgraphConfig projects state across the subgraph boundary. Nothing else
// is shared between parent and child.
type SubgraphConfig struct {
	// In builds the child's input from the parent state.
	In func(parent state.State) map[string]any

	// Out builds the parent's update from the child's final state.
	Out func(parent, child state.State) (map[string]any, error)
}

// SubgraphNode runs a nested compiled graph to completion as one step.
type SubgraphNode struct {
	nodeBase
	child *CompiledGraph
	cfg   SubgraphConfig
}

// Subgraph creates a node that runs child. The child runs under the id
// "<parent execution>.<node id>" and never checkpoints on its own.
func Subgraph(id string, child *CompiledGraph, cfg SubgraphConfig, opts ...NodeOption) *SubgraphNode {
	return &SubgraphNode{nodeBase: newBase(id, KindSubgraph, opts), child: child, cfg: cfg}
}

// Child returns the nested graph.
func (n *SubgraphNode) Child() *CompiledGraph { return n.child }

// Execute implements Node.
func (n *SubgraphNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	var input map[string]any
	if n.cfg.In != nil {
		input = n.cfg.In(ec.State)
	}

	deps := ec.deps
	deps.Checkpoints = nil
	res, err := n.child.Run(ec, input,
		WithExecutionID(ec.ExecutionID+"."+n.id),
		WithDependencies(deps),
		withoutCheckpoints(),
	)
	if err != nil {
		var cancelled *CancelledError
		if errors.As(err, &cancelled) {
			return NodeResult{}, cancelled.Cause
		}
		return NodeResult{}, fmt.Errorf("subgraph %s: %w", n.child.Name(), err)
	}
	if res.Status == StatusPaused {
		return NodeResult{}, fmt.Errorf("%w: %s at %s", ErrSubgraphPaused, n.child.Name(), res.PausedAt)
	}

	var update map[string]any
	if n.cfg.Out != nil {
		if update, err = n.cfg.Out(ec.State, res.State); err != nil {
			return NodeResult{}, fmt.Errorf("project subgraph state: %w", err)
		}
	}
	return NodeResult{Update: update, Output: res.State.Values}, nil
}

func (n *SubgraphNode) validate() error {
	if n.child == nil {
		return fmt.Errorf("%w: subgraph %s has no compiled graph", ErrInvalidNode, n.id)
	}
	return nil
}
