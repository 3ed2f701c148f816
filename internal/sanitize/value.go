// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sanitize

import (
	"encoding/json"
	"fmt"
)

// Value is one node of an untrusted payload. The set of implementations is
// closed: String, List, Record and Scalar.
type Value interface {
	isValue()
}

// String is a text leaf. It is the only variant that gets sanitized.
type String string

// List is an ordered sequence of values.
type List []Value

// Record maps field names to values.
type Record map[string]Value

// Scalar holds any non-string leaf (numbers, booleans, null) unchanged.
type Scalar struct {
	V any
}

func (String) isValue() {}
func (List) isValue()   {}
func (Record) isValue() {}
func (Scalar) isValue() {}

// FromAny converts a decoded JSON document (as produced by encoding/json
// into an any) into a Value tree.
func FromAny(v any) Value {
	switch t := v.(type) {
	case string:
		return String(t)
	case []any:
		out := make(List, len(t))
		for i, item := range t {
			out[i] = FromAny(item)
		}
		return out
	case map[string]any:
		out := make(Record, len(t))
		for k, item := range t {
			out[k] = FromAny(item)
		}
		return out
	case []string:
		out := make(List, len(t))
		for i, s := range t {
			out[i] = String(s)
		}
		return out
	case map[string]string:
		out := make(Record, len(t))
		for k, s := range t {
			out[k] = String(s)
		}
		return out
	default:
		return Scalar{V: t}
	}
}

// Any converts a Value tree back into plain Go values.
func Any(v Value) any {
	switch t := v.(type) {
	case String:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Any(item)
		}
		return out
	case Record:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Any(item)
		}
		return out
	case Scalar:
		return t.V
	default:
		return nil
	}
}

// Decode parses a JSON document into a Value tree.
func Decode(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return FromAny(raw), nil
}

// Into re-encodes a Value tree into dst, typically a request struct.
func Into(v Value, dst any) error {
	data, err := json.Marshal(Any(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
