package graph

import "fmt"

// ToolFunc is a local function that returns a state update.
type ToolFunc func(ec *ExecutionContext) (map[string]any, error)

// ToolNode runs a local function with no agent call.
type ToolNode struct {
	nodeBase
	fn   ToolFunc
	full func(ec *ExecutionContext) (NodeResult, error)
}

// Tool creates a node that runs fn and merges its update into state.
func Tool(id string, fn ToolFunc, opts ...NodeOption) *ToolNode {
	return &ToolNode{nodeBase: newBase(id, KindTool, opts), fn: fn}
}

// Func creates a tool node whose function controls the whole result,
// including Goto and signals.
func Func(id string, fn func(ec *ExecutionContext) (NodeResult, error), opts ...NodeOption) *ToolNode {
	return &ToolNode{nodeBase: newBase(id, KindTool, opts), full: fn}
}

// Execute implements Node.
func (n *ToolNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	if n.full != nil {
		return n.full(ec)
	}
	update, err := n.fn(ec)
	if err != nil {
		return NodeResult{}, err
	}
	return NodeResult{Update: update}, nil
}

func (n *ToolNode) validate() error {
	if n.fn == nil && n.full == nil {
		return fmt.Errorf("%w: tool %s has no function", ErrInvalidNode, n.id)
	}
	return nil
}
