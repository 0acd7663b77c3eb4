package generations

import (
	"encoding/json"
	"strings"

	"github.com/skosovsky/generations/internal/cast"
)

// RawResult is a provider-shaped result document (decoded JSON). Adapters build it from the native
// response; FormatToolResponse reshapes it into the canonical envelope.
type RawResult map[string]any

// Extractors lists, per canonical field, the candidate locations in a RawResult in priority order.
// The first extractor that reports true wins. The lists are a compatibility shim over the shapes
// emitted by the supported backends and by the host application; extend them by adding a new version.
type Extractors struct {
	Content      []func(RawResult) (string, bool)
	Usage        []func(RawResult) (map[string]any, bool)
	InputTokens  []string // field aliases inside the usage object
	OutputTokens []string
	TotalTokens  []string
	FinishReason []func(RawResult) (string, bool)
	Grounding    []func(RawResult) (map[string]any, bool)
	ToolCalls    []func(RawResult) ([]any, bool)
	Candidates   []func(RawResult) ([]any, bool)
}

// ExtractorsV1 is the current extractor table.
var ExtractorsV1 = Extractors{
	Content: []func(RawResult) (string, bool){
		stringAt("content"),
		stringAt("kwargs", "content"),
		// Anthropic messages: content[] blocks.
		textBlocks,
		// OpenAI chat completion.
		stringAt("choices", "0", "message", "content"),
		// Gemini: candidates[0].content.parts[].text.
		geminiText,
	},
	Usage: []func(RawResult) (map[string]any, bool){
		mapAt("usage_metadata"),
		mapAt("kwargs", "usage_metadata"),
		mapAt("response_metadata", "tokenUsage"),
		mapAt("metadata", "usage"),
		mapAt("usage"),
		mapAt("usageMetadata"),
	},
	InputTokens:  []string{"input_tokens", "promptTokens", "inputTokens", "prompt_tokens", "promptTokenCount"},
	OutputTokens: []string{"output_tokens", "completionTokens", "outputTokens", "completion_tokens", "candidatesTokenCount"},
	TotalTokens:  []string{"total_tokens", "totalTokens", "totalTokenCount"},
	FinishReason: []func(RawResult) (string, bool){
		stringAt("additional_kwargs", "finishReason"),
		stringAt("kwargs", "additional_kwargs", "finishReason"),
		stringAt("response_metadata", "finishReason"),
		stringAt("metadata", "finishReason"),
		stringAt("finishReason"),
		stringAt("choices", "0", "finish_reason"),
		stringAt("candidates", "0", "finishReason"),
		stringAt("stop_reason"),
		stringAt("stopReason"),
	},
	Grounding: []func(RawResult) (map[string]any, bool){
		mapAt("additional_kwargs", "groundingMetadata"),
		mapAt("kwargs", "additional_kwargs", "groundingMetadata"),
		mapAt("response_metadata", "groundingMetadata"),
		mapAt("groundingMetadata"),
		mapAt("candidates", "0", "groundingMetadata"),
	},
	ToolCalls: []func(RawResult) ([]any, bool){
		nonEmptySliceAt("toolCalls"),
		nonEmptySliceAt("tool_calls"),
		nonEmptySliceAt("choices", "0", "message", "tool_calls"),
		toolUseBlocks,
		geminiFunctionCalls,
	},
	Candidates: []func(RawResult) ([]any, bool){
		sliceAt("candidates"),
		sliceAt("kwargs", "candidates"),
		sliceAt("additional_kwargs", "candidates"),
	},
}

// FormatToolResponse normalizes raw with ExtractorsV1.
func FormatToolResponse(raw RawResult) *Response {
	return ExtractorsV1.Format(raw)
}

// Format builds the canonical envelope. It never fails: missing usage is zero, a missing finish
// reason is STOP, and the optional sections appear only when the source has them.
func (x Extractors) Format(raw RawResult) *Response {
	resp := &Response{}
	resp.Content, _ = first(raw, x.Content)

	if usage, ok := first(raw, x.Usage); ok {
		resp.Metadata.Usage = Usage{
			InputTokens:  firstInt(usage, x.InputTokens),
			OutputTokens: firstInt(usage, x.OutputTokens),
			TotalTokens:  firstInt(usage, x.TotalTokens),
		}
	}

	if g, ok := first(raw, x.Grounding); ok {
		resp.GroundingMetadata = groundingFrom(g)
	}

	if calls, ok := first(raw, x.ToolCalls); ok {
		for _, c := range calls {
			if m, ok := c.(map[string]any); ok {
				resp.ToolCalls = append(resp.ToolCalls, toolCallFrom(m))
			}
		}
	}

	if cands, ok := first(raw, x.Candidates); ok {
		resp.CodeExecution = codeExecutionFrom(cands)
	}

	reason, _ := first(raw, x.FinishReason)
	resp.Metadata.FinishReason = CanonicalFinishReason(reason)
	if resp.Metadata.FinishReason == FinishStop && len(resp.ToolCalls) > 0 {
		resp.Metadata.FinishReason = FinishToolUse
	}
	return resp
}

// CanonicalFinishReason maps native finish reasons onto the canonical codes. Empty is STOP.
func CanonicalFinishReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop", "end_turn", "stop_sequence", "finish_reason_unspecified":
		return FinishStop
	case "tool_use", "tool_calls", "function_call":
		return FinishToolUse
	default:
		return strings.ToUpper(reason)
	}
}

func first[T any](raw RawResult, fns []func(RawResult) (T, bool)) (T, bool) {
	for _, fn := range fns {
		if v, ok := fn(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func firstInt(m map[string]any, aliases []string) int64 {
	for _, k := range aliases {
		if n, ok := cast.ToInt64(m[k]); ok && n != 0 {
			return n
		}
	}
	return 0
}

func stringAt(path ...string) func(RawResult) (string, bool) {
	return func(raw RawResult) (string, bool) {
		return cast.LookupString(map[string]any(raw), path...)
	}
}

func mapAt(path ...string) func(RawResult) (map[string]any, bool) {
	return func(raw RawResult) (map[string]any, bool) {
		return cast.LookupMap(map[string]any(raw), path...)
	}
}

func sliceAt(path ...string) func(RawResult) ([]any, bool) {
	return func(raw RawResult) ([]any, bool) {
		return cast.LookupSlice(map[string]any(raw), path...)
	}
}

func nonEmptySliceAt(path ...string) func(RawResult) ([]any, bool) {
	at := sliceAt(path...)
	return func(raw RawResult) ([]any, bool) {
		s, ok := at(raw)
		return s, ok && len(s) > 0
	}
}

func textBlocks(raw RawResult) (string, bool) {
	blocks, ok := raw["content"].([]any)
	if !ok {
		return "", false
	}
	var b strings.Builder
	for _, blk := range blocks {
		if m, ok := blk.(map[string]any); ok && m["type"] == "text" {
			s, _ := m["text"].(string)
			b.WriteString(s)
		}
	}
	return b.String(), b.Len() > 0
}

func toolUseBlocks(raw RawResult) ([]any, bool) {
	blocks, ok := raw["content"].([]any)
	if !ok {
		return nil, false
	}
	var out []any
	for _, blk := range blocks {
		if m, ok := blk.(map[string]any); ok && m["type"] == "tool_use" {
			out = append(out, m)
		}
	}
	return out, len(out) > 0
}

func geminiParts(raw RawResult) []any {
	parts, _ := cast.LookupSlice(map[string]any(raw), "candidates", "0", "content", "parts")
	return parts
}

func geminiText(raw RawResult) (string, bool) {
	var b strings.Builder
	for _, p := range geminiParts(raw) {
		m, ok := p.(map[string]any)
		if !ok || m["thought"] == true {
			continue
		}
		s, _ := m["text"].(string)
		b.WriteString(s)
	}
	return b.String(), b.Len() > 0
}

func geminiFunctionCalls(raw RawResult) ([]any, bool) {
	var out []any
	for _, p := range geminiParts(raw) {
		if fc, ok := cast.LookupMap(p, "functionCall"); ok {
			out = append(out, fc)
		}
	}
	return out, len(out) > 0
}

func groundingFrom(g map[string]any) *GroundingMetadata {
	or := func(key string) []any {
		if s, ok := g[key].([]any); ok {
			return s
		}
		return []any{}
	}
	return &GroundingMetadata{
		WebSearchQueries:  or("webSearchQueries"),
		SearchEntryPoint:  g["searchEntryPoint"],
		GroundingChunks:   or("groundingChunks"),
		GroundingSupports: or("groundingSupports"),
	}
}

func toolCallFrom(m map[string]any) ToolCall {
	call := ToolCall{}
	call.Type, _ = m["type"].(string)
	call.Name, _ = m["name"].(string)
	call.ID, _ = m["id"].(string)
	call.Args = m["args"]
	if call.Args == nil {
		call.Args = m["input"]
	}
	// OpenAI form: {"type": "function", "function": {"name", "arguments": "<json>"}}.
	if fn, ok := m["function"].(map[string]any); ok {
		if call.Name == "" {
			call.Name, _ = fn["name"].(string)
		}
		if call.Args == nil {
			call.Args = decodeArgs(fn["arguments"])
		}
	}
	if call.Type == "" {
		call.Type = "function"
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return call
}

func decodeArgs(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

func codeExecutionFrom(candidates []any) []CodeExecutionPart {
	var out []CodeExecutionPart
	for _, c := range candidates {
		parts, _ := cast.LookupSlice(c, "content", "parts")
		for _, p := range parts {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			code := firstMap(m, "executable_code", "executableCode")
			result := firstMap(m, "code_execution_result", "codeExecutionResult")
			if code == nil && result == nil {
				continue
			}
			var part CodeExecutionPart
			if code != nil {
				part.ExecutableCode = &ExecutableCode{
					Language: stringOr(code, "language", "PYTHON"),
					Code:     stringOr(code, "code", ""),
				}
			}
			if result != nil {
				part.CodeExecutionResult = &CodeExecutionResult{
					Outcome: stringOr(result, "outcome", "OUTCOME_UNKNOWN"),
					Output:  stringOr(result, "output", ""),
				}
			}
			part.Text, _ = m["text"].(string)
			out = append(out, part)
		}
	}
	return out
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if v, ok := m[k].(map[string]any); ok {
			return v
		}
	}
	return nil
}

func stringOr(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}
