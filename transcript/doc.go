// Package transcript records the agent conversations of graph executions.
//
// Core types:
//   - Transcript: turns and metadata for one execution id
//   - Manager: lifecycle interface the executor records through
//   - MemoryStore, FileStore: Manager implementations
//   - Searcher: content search and aggregate statistics
//   - Viewer: text rendering
//
// A paused execution ends its transcript with RunStatusPaused; resuming the
// same execution id reopens it so later turns continue the numbering.
//
// Example usage:
//
//	store, err := transcript.NewFileStore(".agentgraph/transcripts")
//	if err != nil {
//	    return err
//	}
//	compiled, err := builder.Compile()
//	result, err := compiled.Run(ctx, input, graph.WithDependencies(graph.RuntimeDependencies{
//	    Transcripts: store,
//	}))
package transcript
