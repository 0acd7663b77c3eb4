package cast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want int64
		ok   bool
	}{
		{"int64", int64(1), 1, true},
		{"int", 2, 2, true},
		{"int32", int32(3), 3, true},
		{"int16", int16(4), 4, true},
		{"int8", int8(5), 5, true},
		{"uint", uint(6), 6, true},
		{"uint8", uint8(7), 7, true},
		{"uint16", uint16(8), 8, true},
		{"uint32", uint32(9), 9, true},
		{"uint64 small", uint64(10), 10, true},
		{"uint64 overflow clamped", uint64(math.MaxInt64) + 999, math.MaxInt64, true},
		{"float64", float64(9), 9, true},
		{"float32", float32(10), 10, true},
		{"string", "1", 0, false},
		{"bool", false, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToInt64(tt.v)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestToStringSlice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		v      any
		want   []string
		wantOk bool
	}{
		{"[]string", []string{"a", "b"}, []string{"a", "b"}, true},
		{"[]any all strings", []any{"x", "y"}, []string{"x", "y"}, true},
		{"[]any empty", []any{}, []string{}, true},
		{"[]any mixed types", []any{"a", 123, "b"}, nil, false},
		{"[]any with bool", []any{"a", true}, nil, false},
		{"non-slice", "not a slice", nil, false},
		{"nil", nil, nil, false},
		{"map", map[string]any{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToStringSlice(tt.v)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	doc := map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": "hi", "empty": ""}}},
		"nil":     nil,
	}
	v, ok := Lookup(doc, "choices", "0", "message", "content")
	assert.True(t, ok)
	assert.Equal(t, "hi", v)

	_, ok = Lookup(doc, "choices", "1")
	assert.False(t, ok)
	_, ok = Lookup(doc, "choices", "x")
	assert.False(t, ok)
	_, ok = Lookup(doc, "nil")
	assert.False(t, ok)
	_, ok = Lookup(doc, "choices", "0", "message", "content", "deeper")
	assert.False(t, ok)

	_, ok = LookupString(doc, "choices", "0", "message", "empty")
	assert.False(t, ok)
	m, ok := LookupMap(doc, "choices", "0", "message")
	assert.True(t, ok)
	assert.Len(t, m, 2)
	s, ok := LookupSlice(doc, "choices")
	assert.True(t, ok)
	assert.Len(t, s, 1)
	_, ok = LookupSlice(doc, "choices", "0")
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	t.Parallel()
	orig := map[string]any{
		"list": []any{map[string]any{"k": "v"}},
		"strs": []string{"a"},
		"n":    1.0,
	}
	cp := Clone(orig).(map[string]any)
	cp["list"].([]any)[0].(map[string]any)["k"] = "changed"
	cp["strs"].([]string)[0] = "b"
	cp["n"] = 2.0

	assert.Equal(t, "v", orig["list"].([]any)[0].(map[string]any)["k"])
	assert.Equal(t, []string{"a"}, orig["strs"])
	assert.InDelta(t, 1.0, orig["n"], 1e-9)
	assert.Nil(t, Clone(nil))
}
