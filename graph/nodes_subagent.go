package graph

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/agentgraph/state"
	"github.com/randalmurphal/agentgraph/subagent"
)

// SubagentConfig configures a single sub-agent delegation.
type SubagentConfig struct {
	// Type names the sub-agent definition in the registry.
	Type   string
	Prompt func(s state.State) (string, error)

	// Map converts the result into a state update. When nil and OutputKey
	// is set, the result text is written to OutputKey.
	Map       func(s state.State, r subagent.Result) (map[string]any, error)
	OutputKey string
}

// SubagentNode delegates one task to the spawn bridge.
type SubagentNode struct {
	nodeBase
	cfg SubagentConfig
}

// Subagent creates a node that spawns one sub-agent.
func Subagent(id string, cfg SubagentConfig, opts ...NodeOption) *SubagentNode {
	return &SubagentNode{nodeBase: newBase(id, KindSubagent, opts), cfg: cfg}
}

// Execute implements Node.
func (n *SubagentNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	bridge, registry, err := spawnDeps(ec)
	if err != nil {
		return NodeResult{}, err
	}
	def, err := registry.Resolve(n.cfg.Type)
	if err != nil {
		return NodeResult{}, err
	}
	prompt, err := n.cfg.Prompt(ec.State)
	if err != nil {
		return NodeResult{}, fmt.Errorf("build prompt: %w", err)
	}

	res, err := bridge.Spawn(ec, subagent.Spec{ID: n.id, Definition: def, Prompt: prompt})
	if err != nil {
		return NodeResult{}, err
	}

	var update map[string]any
	switch {
	case n.cfg.Map != nil:
		if update, err = n.cfg.Map(ec.State, res); err != nil {
			return NodeResult{}, fmt.Errorf("map result: %w", err)
		}
	case n.cfg.OutputKey != "":
		update = map[string]any{n.cfg.OutputKey: res.Output}
	}
	return NodeResult{Update: update, Output: res.Output}, nil
}

func (n *SubagentNode) validate() error {
	if n.cfg.Type == "" || n.cfg.Prompt == nil {
		return fmt.Errorf("%w: subagent %s needs a type and a prompt", ErrInvalidNode, n.id)
	}
	return nil
}

// =============================================================================
// Parallel Sub-agents
// =============================================================================

// JoinPolicy decides how a parallel sub-agent node treats failed tasks.
type JoinPolicy string

// Join policies. There is no default; one must be chosen.
const (
	// JoinAll fails the node when any task fails.
	JoinAll JoinPolicy = "all"

	// JoinPartial passes every result, failed ones included, to Map.
	JoinPartial JoinPolicy = "partial"
)

// Task is one sub-agent task of a parallel delegation.
type Task struct {
	ID     string
	Type   string
	Prompt string
}

// TaskOutcome is the recorded output of one task, in input order.
type TaskOutcome struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ParallelSubagentConfig configures a parallel delegation.
type ParallelSubagentConfig struct {
	Tasks func(s state.State) ([]Task, error)
	Join  JoinPolicy

	// Map receives results in the same order as the tasks.
	Map func(s state.State, results []subagent.Result) (map[string]any, error)
}

// ParallelSubagentNode delegates N tasks concurrently.
type ParallelSubagentNode struct {
	nodeBase
	cfg ParallelSubagentConfig
}

// ParallelSubagent creates a node that spawns sub-agents concurrently.
// Results keep the order of the tasks that produced them.
func ParallelSubagent(id string, cfg ParallelSubagentConfig, opts ...NodeOption) *ParallelSubagentNode {
	return &ParallelSubagentNode{nodeBase: newBase(id, KindSubagent, opts), cfg: cfg}
}

// Execute implements Node.
func (n *ParallelSubagentNode) Execute(ec *ExecutionContext) (NodeResult, error) {
	bridge, registry, err := spawnDeps(ec)
	if err != nil {
		return NodeResult{}, err
	}
	tasks, err := n.cfg.Tasks(ec.State)
	if err != nil {
		return NodeResult{}, fmt.Errorf("build tasks: %w", err)
	}

	specs := make([]subagent.Spec, len(tasks))
	for i, t := range tasks {
		def, err := registry.Resolve(t.Type)
		if err != nil {
			return NodeResult{}, fmt.Errorf("task %d: %w", i, err)
		}
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("%s.%d", n.id, i)
		}
		specs[i] = subagent.Spec{ID: id, Definition: def, Prompt: t.Prompt}
	}

	results, err := bridge.SpawnParallel(ec, specs)
	if err != nil {
		return NodeResult{}, err
	}

	outcomes := make([]TaskOutcome, len(results))
	var failures []error
	for i, r := range results {
		outcomes[i] = TaskOutcome{ID: r.ID, Type: r.Type, Output: r.Output}
		if r.Failed() {
			outcomes[i].Error = r.Err.Error()
			failures = append(failures, fmt.Errorf("task %s: %w", r.ID, r.Err))
		}
	}
	if n.cfg.Join == JoinAll && len(failures) > 0 {
		return NodeResult{}, errors.Join(failures...)
	}

	var update map[string]any
	if n.cfg.Map != nil {
		if update, err = n.cfg.Map(ec.State, results); err != nil {
			return NodeResult{}, fmt.Errorf("map results: %w", err)
		}
	}
	return NodeResult{Update: update, Output: outcomes}, nil
}

func (n *ParallelSubagentNode) validate() error {
	switch n.cfg.Join {
	case JoinAll, JoinPartial:
	case "":
		return ErrJoinPolicy
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrJoinPolicy, n.cfg.Join)
	}
	if n.cfg.Tasks == nil {
		return fmt.Errorf("%w: parallel subagent %s has no task builder", ErrInvalidNode, n.id)
	}
	return nil
}

func spawnDeps(ec *ExecutionContext) (subagent.Bridge, subagent.Registry, error) {
	if ec.deps.Bridge == nil {
		return nil, nil, ErrNoBridge
	}
	if ec.deps.Registry == nil {
		return nil, nil, ErrNoRegistry
	}
	return ec.deps.Bridge, ec.deps.Registry, nil
}
