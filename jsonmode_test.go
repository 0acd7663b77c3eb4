package generations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJSONFallback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want any
		ok   bool
	}{
		{"strict object", `{"a":1}`, map[string]any{"a": 1.0}, true},
		{"strict array", `[1,2]`, []any{1.0, 2.0}, true},
		{"trailing comma", `{"a":1,}`, map[string]any{"a": 1.0}, true},
		{"empty", "  ", nil, false},
		{"prose", "Sorry, I cannot do that.", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseJSONFallback(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructuredResponse(t *testing.T) {
	t.Parallel()
	resp := StructuredResponse(`{"response":"ok"}`)
	assert.Equal(t, `{"response":"ok"}`, resp.Content)
	assert.Equal(t, map[string]any{"response": "ok"}, resp.Structured)
	assert.Equal(t, FinishStop, resp.Metadata.FinishReason)

	raw := StructuredResponse("not json")
	assert.Equal(t, "not json", raw.Content)
	assert.Nil(t, raw.Structured)
}
