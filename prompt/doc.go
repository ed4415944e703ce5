// Package prompt loads and renders text/template prompts for agent nodes and
// sub-agent tasks.
//
// Prompts are looked up by name in .agentgraph/prompts/, then prompts/ under
// the project directory, then in the embedded defaults:
//   - subagent: wraps a spawned sub-agent task with its role description
//   - ask_user: formats a human-input question with optional choices
//   - context_summary: asks an agent to summarize before its context is cleared
//
// Example usage:
//
//	loader := prompt.NewLoader(projectDir)
//	text, err := loader.LoadWithVars("subagent", map[string]any{
//	    "Name": "reviewer",
//	    "Task": "Check the diff for race conditions.",
//	})
package prompt
