// Package graph builds and runs agent workflows as graphs of nodes.
//
// A workflow is declared with a Builder, validated and frozen by Compile,
// and executed any number of times by the resulting CompiledGraph.
//
// # Building
//
//	schema := state.Schema{
//	    "plan":     state.Of(""),
//	    "feedback": state.Factory(func() []string { return nil }, state.Append),
//	    "approved": state.Of(false),
//	}
//
//	g, err := graph.NewBuilder("review", schema).
//	    Start(graph.Agent("plan", graph.AgentConfig{Template: "plan", OutputKey: "plan"})).
//	    Loop([]graph.Node{implement, review}, graph.LoopConfig{
//	        Until:         func(s state.State) bool { return state.Bool(s, "approved") },
//	        MaxIterations: 5,
//	    }).
//	    Wait("approve", graph.WaitConfig{Prompt: "Ship it?"}).
//	    Then(publish).
//	    End().
//	    Compile(graph.WithCheckpointStore(store))
//
// Compile returns the first structural problem as a *ValidationError:
// unreachable nodes, dangling edges, decisions without a default route,
// loops without a ceiling, cycles no run could leave.
//
// # Running
//
// Run drives the graph to completion. Stream yields each StepResult as it
// happens:
//
//	for step, err := range g.Stream(ctx, map[string]any{"task": "fix #12"}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(step.NodeID, step.Status)
//	}
//
// Nodes run one at a time from a FIFO queue. Only a parallel node runs work
// concurrently; its branches operate on copies of state and their updates
// are merged in declaration order once the join strategy is satisfied.
//
// # Pausing and Resuming
//
// Wait and AskUser nodes emit a human_input_required signal. The run stops
// with status paused and a snapshot, saved to the checkpoint store when one
// is configured. Resume, or ResumeFromStore, merges the human's input
// through the node's input mapper and continues with the nodes after it.
//
// # Failures
//
// A failing node is retried per its RetryPolicy with exponential backoff.
// Once attempts are exhausted the run moves to the Catch node if one is
// registered; otherwise it ends with a *RunError listing every recorded
// ExecutionError. Cancellation ends the run with a *CancelledError. The
// MaxSteps ceiling ends runaway graphs with a *StepLimitError.
//
// # Collaborators
//
// Agent sessions, the sub-agent bridge and registry, checkpoint storage,
// notifications, transcripts, prompts, logging and telemetry are injected
// through RuntimeDependencies, either at compile time or per run.
package graph
