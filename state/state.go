package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"
)

// Reserved keys owned by the executor.
const (
	KeyExecutionID = "executionId"
	KeyLastUpdated = "lastUpdated"
	KeyOutputs     = "outputs"
)

// ErrReservedField indicates an update tried to write an executor-owned key.
var ErrReservedField = errors.New("reserved state field")

// UnknownFieldError indicates an update referenced a field absent from the schema.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown state field %q", e.Field)
}

// ReduceError wraps a reducer failure with the field it occurred on.
type ReduceError struct {
	Field string
	Err   error
}

func (e *ReduceError) Error() string {
	return fmt.Sprintf("reduce field %q: %v", e.Field, e.Err)
}

func (e *ReduceError) Unwrap() error {
	return e.Err
}

// =============================================================================
// State
// =============================================================================

// State is the run state of one execution.
//
// Values holds the workflow-specific fields declared by a Schema. Outputs holds
// the raw output of every node that has completed, keyed by node id.
// A State is treated as immutable: Apply returns a new value.
type State struct {
	ExecutionID string         `json:"executionId"`
	LastUpdated time.Time      `json:"lastUpdated"`
	Outputs     map[string]any `json:"outputs"`
	Values      map[string]any `json:"values"`
}

// Get returns the value of a declared field.
func (s State) Get(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Output returns the recorded output of a node.
func (s State) Output(nodeID string) (any, bool) {
	v, ok := s.Outputs[nodeID]
	return v, ok
}

// HasOutput reports whether a node has recorded output.
func (s State) HasOutput(nodeID string) bool {
	_, ok := s.Outputs[nodeID]
	return ok
}

// Clone returns a copy whose maps can be modified without affecting s.
// Field values themselves are shared; reducers never mutate them.
func (s State) Clone() State {
	return State{
		ExecutionID: s.ExecutionID,
		LastUpdated: s.LastUpdated,
		Outputs:     cloneMap(s.Outputs),
		Values:      cloneMap(s.Values),
	}
}

// WithOutput returns a copy of s with the node output recorded.
func (s State) WithOutput(nodeID string, output any) State {
	next := s.Clone()
	next.Outputs[nodeID] = output
	return next
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}

// Get returns the field value as T, or the zero value when the field is
// absent or holds another type.
func Get[T any](s State, key string) T {
	var zero T
	v, ok := s.Values[key]
	if !ok {
		return zero
	}
	if typed, ok := v.(T); ok {
		return typed
	}
	return zero
}

// Int returns a numeric field as int. Values decoded from JSON without a
// declared type arrive as float64; both forms are accepted.
func Int(s State, key string) int {
	switch v := s.Values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}

// String returns a string field, or "" if absent.
func String(s State, key string) string {
	return Get[string](s, key)
}

// Bool returns a boolean field, or false if absent.
func Bool(s State, key string) bool {
	return Get[bool](s, key)
}

// =============================================================================
// Schema
// =============================================================================

// Schema declares the workflow fields of a State.
type Schema map[string]Field

// Initialize produces the zero-value state for a new execution. Factory
// defaults are invoked per call so runs never share a mutable default.
func (sc Schema) Initialize(executionID string) State {
	values := make(map[string]any, len(sc))
	for name, field := range sc {
		values[name] = field.Default()
	}
	return State{
		ExecutionID: executionID,
		Outputs:     make(map[string]any),
		Values:      values,
	}
}

// Apply reduces each key of update into current through its field's reducer
// and returns the new state. Fields absent from the update are untouched.
// current is never modified.
func (sc Schema) Apply(current State, update map[string]any) (State, error) {
	if len(update) == 0 {
		return current, nil
	}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := current.Clone()
	for _, key := range keys {
		if isReserved(key) {
			return current, fmt.Errorf("%w: %s", ErrReservedField, key)
		}
		field, ok := sc[key]
		if !ok {
			return current, &UnknownFieldError{Field: key}
		}
		reduced, err := field.Reduce(next.Values[key], update[key])
		if err != nil {
			return current, &ReduceError{Field: key, Err: err}
		}
		next.Values[key] = reduced
	}
	return next, nil
}

// Validate checks an update against the schema without applying it.
func (sc Schema) Validate(update map[string]any) error {
	for key := range update {
		if isReserved(key) {
			return fmt.Errorf("%w: %s", ErrReservedField, key)
		}
		if _, ok := sc[key]; !ok {
			return &UnknownFieldError{Field: key}
		}
	}
	return nil
}

// Names returns the declared field names in sorted order.
func (sc Schema) Names() []string {
	names := make([]string, 0, len(sc))
	for name := range sc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode serializes field values for checkpointing.
func (sc Schema) Encode(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for name, v := range values {
		data, err := marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Decode restores field values serialized by Encode, converting each one back
// into the type its field declares. Unknown fields are rejected.
func (sc Schema) Decode(raw map[string]json.RawMessage) (map[string]any, error) {
	out := make(map[string]any, len(sc))
	for name, field := range sc {
		out[name] = field.Default()
	}
	for name, data := range raw {
		field, ok := sc[name]
		if !ok {
			return nil, &UnknownFieldError{Field: name}
		}
		v, err := field.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode field %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func isReserved(key string) bool {
	return key == KeyExecutionID || key == KeyLastUpdated || key == KeyOutputs
}
