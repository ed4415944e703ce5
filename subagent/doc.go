// Package subagent resolves sub-agent types and spawns them as independent,
// narrower-scoped agent sessions.
//
// Core types:
//   - Definition: a named sub-agent type (prompt, model, task type, tools)
//   - Registry: resolves a type name to a Definition
//   - Bridge: spawns one or many sub-agents and collects their results
//
// Registries can be built in code with MapRegistry or loaded from YAML:
//
//	agents:
//	  - name: reviewer
//	    description: Reviews diffs for correctness
//	    task: review
//	    system_prompt: You are a meticulous code reviewer.
//
// Example usage:
//
//	reg, err := subagent.LoadRegistry(".agentgraph/agents.yaml")
//	bridge := subagent.NewSessionBridge(provider, reg, subagent.WithConcurrency(4))
//	results, err := bridge.SpawnParallel(ctx, []subagent.Spec{
//	    {Type: "reviewer", Prompt: "Review handler.go"},
//	    {Type: "reviewer", Prompt: "Review store.go"},
//	})
package subagent
