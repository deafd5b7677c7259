package rulz

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// CloneStrategy selects how a composition duplicates the shared context
// when isolation is requested via WithContextClone.
//
//   - CloneShallow copies only the top level: map keys, slice headers, the
//     pointed-to value of a pointer. Nested references stay shared. Fast,
//     no special-type or cycle support beyond what a top-level copy gives.
//   - CloneStructured uses the context's own Cloner[C] implementation, the
//     deep, cycle-safe, rich-type-preserving tier. When C does not
//     implement Cloner, the JSON strategy is used instead; the fallback is
//     part of the contract, not a silent surprise, so pick CloneStructured
//     only for contexts that implement Cloner or tolerate JSON semantics.
//   - CloneJSON round-trips through encoding/json: deep for plain data,
//     loses non-JSON-representable types, and fails on cyclic values.
type CloneStrategy uint8

const (
	CloneShallow CloneStrategy = iota
	CloneStructured
	CloneJSON
)

// cloneShared duplicates the shared context per the strategy. A nil context
// clones to an empty value of C (empty map, zeroed pointee, nil-free zero)
// for every strategy rather than failing.
func cloneShared[C any](shared C, strategy CloneStrategy) (C, error) {
	if isNilContext(shared) {
		return emptyContext[C](), nil
	}
	switch strategy {
	case CloneStructured:
		if c, ok := any(shared).(Cloner[C]); ok {
			return c.Clone(), nil
		}
		return jsonClone(shared)
	case CloneJSON:
		return jsonClone(shared)
	default:
		return shallowClone(shared), nil
	}
}

func jsonClone[C any](shared C) (C, error) {
	var out C
	data, err := json.Marshal(shared)
	if err != nil {
		return out, fmt.Errorf("json clone: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("json clone: %w", err)
	}
	return out, nil
}

func shallowClone[C any](shared C) C {
	v := reflect.ValueOf(shared)
	switch v.Kind() {
	case reflect.Map:
		m := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m.SetMapIndex(iter.Key(), iter.Value())
		}
		return m.Interface().(C)
	case reflect.Slice:
		s := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(s, v)
		return s.Interface().(C)
	case reflect.Ptr:
		n := reflect.New(v.Type().Elem())
		n.Elem().Set(v.Elem())
		return n.Interface().(C)
	default:
		// Value kinds are already copied by assignment.
		return shared
	}
}

// isNilContext reports whether the context is absent: an untyped nil or a
// nil value of a nilable kind.
func isNilContext[C any](shared C) bool {
	v := reflect.ValueOf(shared)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// emptyContext builds the "empty object" a nil context clones to:
// an empty map for map types, a zeroed pointee for pointers, an empty
// map[string]any for untyped interface contexts, the zero value otherwise.
func emptyContext[C any]() C {
	var zero C
	t := reflect.TypeOf(&zero).Elem()
	v := reflect.ValueOf(&zero).Elem()
	switch t.Kind() {
	case reflect.Map:
		v.Set(reflect.MakeMap(t))
	case reflect.Ptr:
		v.Set(reflect.New(t.Elem()))
	case reflect.Slice:
		v.Set(reflect.MakeSlice(t, 0, 0))
	case reflect.Interface:
		if m, ok := any(map[string]any{}).(C); ok {
			return m
		}
	}
	return zero
}

// resolveShared applies the composition's clone policy once per invocation.
func resolveShared[C any](shared C, clone bool, strategy CloneStrategy) (C, error) {
	if !clone {
		return shared, nil
	}
	return cloneShared(shared, strategy)
}
