// Package config provides hierarchical configuration resolution and the typed
// engine settings built from it.
//
// Values are layered with clear precedence:
//  1. Flags (ResolveWithFlags)
//  2. Environment variables (AGENTGRAPH_MAX_STEPS sets "max_steps")
//  3. Local config (.agentgraph.yaml in the git root)
//  4. Global config (~/.config/agentgraph/config.yaml)
//  5. Built-in defaults
//
// # Engine settings
//
//	resolved := config.NewEngineResolver().Resolve()
//	engine, err := config.LoadEngine(resolved)
//	if err != nil {
//	    return err
//	}
//	compiled, err := builder.Compile(graph.FromEngineConfig(engine)...)
//
// Each resolved value records where it came from (default, global, local,
// env or flag) through Resolved.Source.
//
// Durations accept Go syntax ("250ms", "2s") or a bare integer in
// milliseconds.
package config
