package generations

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseJSONFallback parses model output requested in JSON mode. It tries a strict parse, then a
// repaired parse (code fences, trailing commas, truncated output). When both fail it returns
// ok=false and the caller keeps the raw text; the failure is never surfaced as an error.
func ParseJSONFallback(text string) (value any, ok bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value, true
	}
	if !strings.ContainsAny(trimmed, "{[") {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, false
	}
	// Prose around a stray bracket must stay prose.
	switch value.(type) {
	case map[string]any, []any:
		return value, true
	default:
		return nil, false
	}
}

// StructuredResponse builds the JSON-mode envelope: content is the raw text and Structured
// holds the parsed value when parsing succeeded.
func StructuredResponse(text string) *Response {
	resp := NewResponse(text)
	if v, ok := ParseJSONFallback(text); ok {
		resp.Structured = v
	}
	return resp
}
