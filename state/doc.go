// Package state declares workflow state fields and how updates merge into them.
//
// A Schema maps field names to Field annotations. Each Field carries a default
// (or a default factory) and a Reducer that combines the current value with an
// incoming partial update:
//
//	schema := state.Schema{
//	    "counter":  state.Of(0, state.Sum),
//	    "messages": state.Factory(func() []string { return nil }, state.Append),
//	    "tasks":    state.Annotation(nil, state.MergeByKey("id")),
//	    "summary":  state.Of(""), // replace
//	}
//
//	s := schema.Initialize("exec-1")
//	s, err := schema.Apply(s, map[string]any{"counter": 1})
//
// Built-in reducers:
//   - Replace: last write wins (the default)
//   - Append: sequence concatenation
//   - Merge: shallow key union of maps
//   - MergeByKey(k): upsert sequence elements by key field k, in place
//   - DeepMerge: recursive map merge
//   - Sum: numeric addition
//
// Any func(current, update any) (any, error) is a custom reducer; Func adapts a
// typed function. Reducers must be pure: the same inputs always produce the same
// output and neither input is mutated. Checkpoint resume depends on this.
//
// Updates naming a field that is not declared in the schema fail with an
// UnknownFieldError. The reserved keys executionId, lastUpdated and outputs are
// owned by the executor and cannot be updated.
package state
