package state

import (
	"fmt"
	"reflect"
	"strings"

	"dario.cat/mergo"
)

// Reducer combines the current value of a field with an incoming update.
// Implementations must be pure and must not modify either argument.
type Reducer func(current, update any) (any, error)

// Replace is last-write-wins.
func Replace(_, update any) (any, error) {
	return update, nil
}

// Append concatenates sequences. A non-slice update is appended as a single
// element. The result is always a freshly allocated slice.
func Append(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)
	if current == nil {
		if uv.Kind() == reflect.Slice {
			return copySlice(uv).Interface(), nil
		}
		return []any{update}, nil
	}

	cv := reflect.ValueOf(current)
	if cv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append: current value is %T, not a slice", current)
	}

	out := copySlice(cv)
	if uv.Kind() == reflect.Slice {
		for i := 0; i < uv.Len(); i++ {
			elem, err := assignable(uv.Index(i), cv.Type().Elem())
			if err != nil {
				return nil, fmt.Errorf("append: %w", err)
			}
			out = reflect.Append(out, elem)
		}
		return out.Interface(), nil
	}

	elem, err := assignable(uv, cv.Type().Elem())
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}
	return reflect.Append(out, elem).Interface(), nil
}

// Merge is a shallow key union of maps; keys in update win.
func Merge(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Map {
		return nil, fmt.Errorf("merge: update is %T, not a map", update)
	}
	if current == nil {
		return copyMap(uv).Interface(), nil
	}
	cv := reflect.ValueOf(current)
	if cv.Kind() != reflect.Map {
		return nil, fmt.Errorf("merge: current value is %T, not a map", current)
	}

	out := copyMap(cv)
	iter := uv.MapRange()
	for iter.Next() {
		key, err := assignable(iter.Key(), cv.Type().Key())
		if err != nil {
			return nil, fmt.Errorf("merge key: %w", err)
		}
		val, err := assignable(iter.Value(), cv.Type().Elem())
		if err != nil {
			return nil, fmt.Errorf("merge value: %w", err)
		}
		out.SetMapIndex(key, val)
	}
	return out.Interface(), nil
}

// MergeByKey upserts sequence elements by the value of key. An update element
// whose key matches an existing element replaces it at the same position;
// other elements keep their position and identity. New keys are appended.
//
// Elements may be maps with string keys or structs (matched by field name or
// json tag).
func MergeByKey(key string) Reducer {
	return func(current, update any) (any, error) {
		if update == nil {
			return current, nil
		}
		uv := reflect.ValueOf(update)
		if uv.Kind() != reflect.Slice {
			uv = reflect.Append(reflect.MakeSlice(reflect.SliceOf(uv.Type()), 0, 1), uv)
		}
		if current == nil {
			return copySlice(uv).Interface(), nil
		}
		cv := reflect.ValueOf(current)
		if cv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("mergeByKey: current value is %T, not a slice", current)
		}

		out := copySlice(cv)
		index := make(map[any]int, out.Len())
		for i := 0; i < out.Len(); i++ {
			k, ok, err := elementKey(out.Index(i), key)
			if err != nil {
				return nil, err
			}
			if ok {
				index[k] = i
			}
		}

		for i := 0; i < uv.Len(); i++ {
			elem, err := assignable(uv.Index(i), cv.Type().Elem())
			if err != nil {
				return nil, fmt.Errorf("mergeByKey: %w", err)
			}
			k, ok, err := elementKey(uv.Index(i), key)
			if err != nil {
				return nil, err
			}
			if ok {
				if pos, exists := index[k]; exists {
					out.Index(pos).Set(elem)
					continue
				}
				index[k] = out.Len()
			}
			out = reflect.Append(out, elem)
		}
		return out.Interface(), nil
	}
}

// DeepMerge recursively merges map[string]any values. Nested maps are merged
// rather than replaced; slices and scalars in update win.
func DeepMerge(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	src, ok := update.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("deepMerge: update is %T, not map[string]any", update)
	}
	if current == nil {
		return deepCopy(src).(map[string]any), nil
	}
	cur, ok := current.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("deepMerge: current value is %T, not map[string]any", current)
	}

	dst := deepCopy(cur).(map[string]any)
	if err := mergo.Merge(&dst, deepCopy(src).(map[string]any), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("deepMerge: %w", err)
	}
	return dst, nil
}

// Sum adds numeric updates to the current value. int and float64 operands are
// supported; mixing them produces a float64.
func Sum(current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	if current == nil {
		return update, nil
	}
	switch c := current.(type) {
	case int:
		switch u := update.(type) {
		case int:
			return c + u, nil
		case float64:
			return float64(c) + u, nil
		}
	case int64:
		if u, ok := update.(int64); ok {
			return c + u, nil
		}
	case float64:
		switch u := update.(type) {
		case float64:
			return c + u, nil
		case int:
			return c + float64(u), nil
		}
	}
	return nil, fmt.Errorf("sum: cannot add %T to %T", update, current)
}

// Func adapts a typed reducer. A nil current value is passed as the zero T.
func Func[T any](fn func(current, update T) T) Reducer {
	return func(current, update any) (any, error) {
		var cur, upd T
		if current != nil {
			c, ok := current.(T)
			if !ok {
				return nil, fmt.Errorf("reducer: current value is %T, want %T", current, cur)
			}
			cur = c
		}
		if update != nil {
			u, ok := update.(T)
			if !ok {
				return nil, fmt.Errorf("reducer: update is %T, want %T", update, upd)
			}
			upd = u
		}
		return fn(cur, upd), nil
	}
}

// =============================================================================
// Helpers
// =============================================================================

func copySlice(v reflect.Value) reflect.Value {
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(out, v)
	return out
}

func copyMap(v reflect.Value) reflect.Value {
	out := reflect.MakeMapWithSize(v.Type(), v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out.SetMapIndex(iter.Key(), iter.Value())
	}
	return out
}

func assignable(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(target), nil
	}
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	if v.Type().ConvertibleTo(target) && v.Kind() == target.Kind() {
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), target)
}

func elementKey(v reflect.Value, key string) (any, bool, error) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false, nil
		}
		v = v.Elem()
	}

	var kv reflect.Value
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false, fmt.Errorf("mergeByKey: map elements need string keys, got %s", v.Type())
		}
		kv = v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
	case reflect.Struct:
		kv = structField(v, key)
	default:
		return nil, false, fmt.Errorf("mergeByKey: element %s has no key %q", v.Type(), key)
	}

	if !kv.IsValid() {
		return nil, false, nil
	}
	if kv.Kind() == reflect.Interface {
		if kv.IsNil() {
			return nil, false, nil
		}
		kv = kv.Elem()
	}
	if !kv.Type().Comparable() {
		return nil, false, fmt.Errorf("mergeByKey: key %q has non-comparable type %s", key, kv.Type())
	}
	return kv.Interface(), true, nil
}

func structField(v reflect.Value, key string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if f.Name == key || tag == key {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopy(inner)
		}
		return out
	default:
		return v
	}
}
