// Package cast provides coercion and traversal helpers for decoded JSON documents
// (map[string]any, []any and numeric leaves).
package cast

import (
	"encoding/json"
	"math"
	"strconv"
)

// ToInt64 converts a numeric value to int64. Unsigned values above math.MaxInt64 are clamped;
// NaN and Inf are rejected; fractional floats are truncated.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case uint64:
		return clampUint(x), true
	case uint:
		return clampUint(uint64(x)), true
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	}
	return toInteger(v)
}

func toInteger(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	}
	return 0, false
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ToStringSlice converts v to []string. Accepts []string or []any where each element is string.
func ToStringSlice(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Lookup walks doc along path. Map keys select object fields; numeric keys index arrays.
// It reports false when any step is missing or has the wrong shape, and for a nil leaf.
func Lookup(doc any, path ...string) (any, bool) {
	cur := doc
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// LookupString is Lookup for a non-empty string leaf.
func LookupString(doc any, path ...string) (string, bool) {
	v, ok := Lookup(doc, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// LookupMap is Lookup for an object leaf.
func LookupMap(doc any, path ...string) (map[string]any, bool) {
	v, ok := Lookup(doc, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// LookupSlice is Lookup for an array leaf.
func LookupSlice(doc any, path ...string) ([]any, bool) {
	v, ok := Lookup(doc, path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// Clone deep-copies a decoded JSON value. Maps and slices are copied; other leaves are shared.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Clone(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
