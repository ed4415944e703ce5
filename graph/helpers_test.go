package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentgraph/state"
)

// noop is a tool node that changes nothing.
func noop(id string, opts ...NodeOption) *ToolNode {
	return Tool(id, func(*ExecutionContext) (map[string]any, error) { return nil, nil }, opts...)
}

// set is a tool node that writes one value.
func set(id, key string, value any) *ToolNode {
	return Tool(id, func(*ExecutionContext) (map[string]any, error) {
		return map[string]any{key: value}, nil
	})
}

// inc adds 1 to count.
func inc(id string) *ToolNode {
	return Tool(id, func(*ExecutionContext) (map[string]any, error) {
		return map[string]any{"count": 1}, nil
	})
}

func counterSchema() state.Schema {
	return state.Schema{
		"count": state.Of(0, state.Sum),
		"x":     state.Of(0),
		"log":   state.Factory(func() []string { return nil }, state.Append),
	}
}

// appendLog appends id to log.
func appendLog(id string) *ToolNode {
	return Tool(id, func(*ExecutionContext) (map[string]any, error) {
		return map[string]any{"log": id}, nil
	})
}

func mustCompile(t *testing.T, b *Builder, opts ...CompileOption) *CompiledGraph {
	t.Helper()
	g, err := b.Compile(opts...)
	require.NoError(t, err)
	return g
}

func nodeIDs(steps []StepResult) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.NodeID
	}
	return ids
}

func collect(t *testing.T, g *CompiledGraph, input map[string]any, opts ...RunOption) ([]StepResult, error) {
	t.Helper()
	var steps []StepResult
	for step, err := range g.Stream(t.Context(), input, opts...) {
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
