package state

import (
	json "github.com/goccy/go-json"
)

// Field is one declared state field: its default and its merge policy.
type Field struct {
	def     any
	factory func() any
	reducer Reducer
	decode  func(data []byte) (any, error)
}

// Annotation declares a field with an untyped default. When def is a
// func() any it is treated as a factory and invoked for every new state.
// An omitted reducer means Replace.
func Annotation(def any, reducer ...Reducer) Field {
	f := Field{def: def, reducer: pickReducer(reducer)}
	if fn, ok := def.(func() any); ok {
		f.def = nil
		f.factory = fn
	}
	f.decode = decodeAny
	return f
}

// Of declares a typed field. Values restored from a checkpoint are decoded
// back into T rather than generic JSON values.
func Of[T any](def T, reducer ...Reducer) Field {
	return Field{
		def:     def,
		reducer: pickReducer(reducer),
		decode:  decodeAs[T],
	}
}

// Factory declares a typed field whose default is built fresh for every
// execution. Use it for slices and maps so runs never alias one default.
func Factory[T any](fn func() T, reducer ...Reducer) Field {
	return Field{
		factory: func() any { return fn() },
		reducer: pickReducer(reducer),
		decode:  decodeAs[T],
	}
}

// Default returns the field's zero value for a new execution.
func (f Field) Default() any {
	if f.factory != nil {
		return f.factory()
	}
	return f.def
}

// Reduce merges update into current using the field's reducer.
func (f Field) Reduce(current, update any) (any, error) {
	if f.reducer == nil {
		return Replace(current, update)
	}
	return f.reducer(current, update)
}

// Decode converts a serialized value into the field's declared type.
func (f Field) Decode(data []byte) (any, error) {
	if f.decode == nil {
		return decodeAny(data)
	}
	return f.decode(data)
}

func pickReducer(reducers []Reducer) Reducer {
	if len(reducers) == 0 || reducers[0] == nil {
		return Replace
	}
	return reducers[0]
}

func decodeAny(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
