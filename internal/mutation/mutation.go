// Package mutation implements the mutation-application algebra: a closed
// tagged sum of operators that compute a new keyenc.Value from an old one.
// It is a separate concern from the version chain store, which treats the
// result of applying an operation as an opaque value — nothing here
// touches ChainState, Record, or any KV engine.
package mutation

import "github.com/angular/tactical/internal/keyenc"

// Operation is one node of the mutation-application algebra: given the
// current value at some position, it computes the new value at that
// position, or fails.
type Operation interface {
	Apply(current keyenc.Value) (keyenc.Value, error)
}

// SetProperties merges Properties into current, which must be an Object
// (or absent, treated as an empty Object). Existing keys not named in
// Properties are left untouched.
type SetProperties struct {
	Properties map[string]keyenc.Value
}

func (op SetProperties) Apply(current keyenc.Value) (keyenc.Value, error) {
	obj, err := asObject(current)
	if err != nil {
		return nil, err
	}
	merged := make(keyenc.Object, len(obj)+len(op.Properties))
	for k, v := range obj {
		merged[k] = v
	}
	for k, v := range op.Properties {
		merged[k] = v
	}
	return merged, nil
}

// SubProperty applies Inner to the value currently stored at Key within an
// Object, replacing it with Inner's result. current must be an Object (or
// absent).
type SubProperty struct {
	Key   string
	Inner Operation
}

func (op SubProperty) Apply(current keyenc.Value) (keyenc.Value, error) {
	obj, err := asObject(current)
	if err != nil {
		return nil, err
	}
	var existing keyenc.Value = keyenc.Absent{}
	if v, ok := obj[op.Key]; ok {
		existing = v
	}
	next, err := op.Inner.Apply(existing)
	if err != nil {
		return nil, err
	}
	merged := make(keyenc.Object, len(obj)+1)
	for k, v := range obj {
		merged[k] = v
	}
	if _, isAbsent := next.(keyenc.Absent); isAbsent {
		delete(merged, op.Key)
	} else {
		merged[op.Key] = next
	}
	return merged, nil
}

// ArrayValue sets the element at Index of current, which must be an Array
// long enough to hold it; use ArrayTruncation first to grow or shrink.
type ArrayValue struct {
	Index int
	Value keyenc.Value
}

func (op ArrayValue) Apply(current keyenc.Value) (keyenc.Value, error) {
	arr, err := asArray(current)
	if err != nil {
		return nil, err
	}
	if op.Index < 0 || op.Index >= len(arr) {
		return nil, &IndexOutOfRangeError{Index: op.Index, Length: len(arr)}
	}
	next := make(keyenc.Array, len(arr))
	copy(next, arr)
	next[op.Index] = op.Value
	return next, nil
}

// ArrayTruncation resizes current (which must be an Array, or absent,
// treated as empty) to Length, padding new slots with keyenc.Null{} or
// dropping trailing elements.
type ArrayTruncation struct {
	Length int
}

func (op ArrayTruncation) Apply(current keyenc.Value) (keyenc.Value, error) {
	if op.Length < 0 {
		return nil, &NegativeLengthError{Length: op.Length}
	}
	arr, err := asArray(current)
	if err != nil {
		return nil, err
	}
	next := make(keyenc.Array, op.Length)
	for i := range next {
		if i < len(arr) {
			next[i] = arr[i]
		} else {
			next[i] = keyenc.Null{}
		}
	}
	return next, nil
}

// ArraySub applies Inner to the element currently at Index within an
// Array, replacing it with Inner's result.
type ArraySub struct {
	Index int
	Inner Operation
}

func (op ArraySub) Apply(current keyenc.Value) (keyenc.Value, error) {
	arr, err := asArray(current)
	if err != nil {
		return nil, err
	}
	if op.Index < 0 || op.Index >= len(arr) {
		return nil, &IndexOutOfRangeError{Index: op.Index, Length: len(arr)}
	}
	next, err := op.Inner.Apply(arr[op.Index])
	if err != nil {
		return nil, err
	}
	result := make(keyenc.Array, len(arr))
	copy(result, arr)
	result[op.Index] = next
	return result, nil
}

func asObject(v keyenc.Value) (keyenc.Object, error) {
	switch t := v.(type) {
	case keyenc.Object:
		return t, nil
	case keyenc.Absent, nil:
		return keyenc.Object{}, nil
	default:
		return nil, &NotObjectError{Offending: v}
	}
}

func asArray(v keyenc.Value) (keyenc.Array, error) {
	switch t := v.(type) {
	case keyenc.Array:
		return t, nil
	case keyenc.Absent, nil:
		return keyenc.Array{}, nil
	default:
		return nil, &NotArrayError{Offending: v}
	}
}
