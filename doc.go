// Package agentgraph provides a graph-based workflow engine for orchestrating
// AI agent runs.
//
// The module is organized into subpackages by domain:
//
//   - graph: builder, node types, compiled graphs and the executor
//   - state: schemas, reducers and typed state accessors
//   - agent: agent sessions (Claude via llmkit, OpenAI, in-process functions)
//   - subagent: sub-agent definitions, registry and spawn bridge
//   - checkpoint: snapshot stores (memory, file, SQLite, Badger)
//   - transcript: conversation transcript recording and search
//   - notify: run lifecycle notifications (log, Slack, webhook)
//   - prompt: prompt template loading
//   - config: hierarchical configuration and engine settings
//   - observability: structured logging and OpenTelemetry instrumentation
//   - testutil: test utilities and fixtures
//
// # Quick Start
//
//	import (
//	    "github.com/randalmurphal/agentgraph/agent"
//	    "github.com/randalmurphal/agentgraph/graph"
//	    "github.com/randalmurphal/agentgraph/state"
//	)
//
//	schema := state.Schema{
//	    "task": state.Of(""),
//	    "plan": state.Of(""),
//	}
//
//	g, err := graph.NewBuilder("plan", schema).
//	    Start(graph.Agent("plan", graph.AgentConfig{
//	        Prompt:    func(s state.State) (string, error) { return "Plan: " + state.String(s, "task"), nil },
//	        OutputKey: "plan",
//	    })).
//	    End().
//	    Compile(graph.WithRuntimeDependencies(graph.RuntimeDependencies{
//	        Sessions: agent.NewClaudeProvider(client),
//	    }))
//
//	res, err := g.Run(ctx, map[string]any{"task": "add caching"})
//
// See examples/basic for a complete program covering configuration, loops,
// parallel branches, human approval and resume.
package agentgraph
