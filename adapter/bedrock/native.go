package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
)

// Native route constants.
const (
	// JSONInstruction is appended to the system prompt for plain JSON mode.
	JSONInstruction = "\n\nPlease respond with valid JSON format."
	// SchemaToolName names the forced tool of a response_schema call without a name.
	SchemaToolName = "structured_response"
)

// NativeRequest is the Anthropic Messages body sent through InvokeModel.
type NativeRequest struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	Messages         []anthropic.MessageParam `json:"messages"`
	MaxTokens        int64                    `json:"max_tokens"`
	Temperature      float64                  `json:"temperature"`
	System           string                   `json:"system,omitempty"`
	Tools            []map[string]any         `json:"tools,omitempty"`
	ToolChoice       map[string]any           `json:"tool_choice,omitempty"`
}

// NativeCall is a translated native request: the body, the resolved model id and the forced
// schema tool name (empty unless response_schema applies).
type NativeCall struct {
	ModelID    string
	Body       *NativeRequest
	SchemaTool string
	JSONMode   bool
}

// TranslateNative builds the InvokeModel call for req. Tools are sent in Anthropic form; without
// tools a response_schema becomes a forced tool and plain JSON mode extends the system prompt.
func (a *Adapter) TranslateNative(req *generations.GenerateRequest) (*NativeCall, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	alias, _ := ResolveModel(a.modelOf(req))
	body := &NativeRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        req.MaxTokensOr(DefaultMaxTokens),
		Temperature:      req.TemperatureOr(DefaultTemperature),
		System:           a.systemOf(req),
	}
	for _, t := range mergeTurns(append(history(req.Prev), turn{role: generations.RoleUser, text: req.Message})) {
		block := anthropic.NewTextBlock(t.text)
		if t.role == generations.RoleAssistant {
			body.Messages = append(body.Messages, anthropic.NewAssistantMessage(block))
		} else {
			body.Messages = append(body.Messages, anthropic.NewUserMessage(block))
		}
	}
	call := &NativeCall{ModelID: alias.Model, Body: body}
	switch {
	case len(req.Tools) > 0:
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, t.Document())
		}
	case req.ResponseSchema != nil:
		s := req.ResponseSchema
		name := s.Name
		if name == "" {
			name = SchemaToolName
		}
		desc := s.Description
		if desc == "" {
			desc = "Structured response"
		}
		schema := s.Document()
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		body.Tools = []map[string]any{{"name": name, "description": desc, "input_schema": schema}}
		body.ToolChoice = map[string]any{"type": "tool", "name": name}
		call.SchemaTool = name
	case req.JSONMode:
		body.System += JSONInstruction
		call.JSONMode = true
	}
	return call, nil
}

func (a *Adapter) invokeNative(ctx context.Context, rt Runtime, req *generations.GenerateRequest) (*generations.Response, error) {
	call, err := a.TranslateNative(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(call.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrMalformedArgs, err)
	}
	out, err := rt.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(call.ModelID),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpGenerate, err)
	}
	return ParseNative(out.Body, call.SchemaTool, call.JSONMode)
}

// ParseNative normalizes an Anthropic Messages response body. When schemaTool is set, the input of
// the first tool_use block is the structured result. In JSON mode the text is parsed leniently.
func ParseNative(body []byte, schemaTool string, jsonMode bool) (*generations.Response, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrInvalidResponse, err)
	}
	usage := map[string]any{
		"inputTokens":  msg.Usage.InputTokens,
		"outputTokens": msg.Usage.OutputTokens,
		"totalTokens":  msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}
	if schemaTool != "" {
		for _, block := range msg.Content {
			if block.Type != "tool_use" {
				continue
			}
			resp := generations.FormatToolResponse(generations.RawResult{
				"content":  string(block.Input),
				"metadata": map[string]any{"usage": usage},
			})
			resp.Structured = decodeInput(block.Input)
			return resp, nil
		}
	}
	var text strings.Builder
	var calls []any
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, map[string]any{
				"type": "function",
				"name": block.Name,
				"id":   block.ID,
				"args": decodeInput(block.Input),
			})
		}
	}
	raw := generations.RawResult{
		"content":  text.String(),
		"metadata": map[string]any{"finishReason": string(msg.StopReason), "usage": usage},
	}
	if len(calls) > 0 {
		raw["toolCalls"] = calls
	}
	resp := generations.FormatToolResponse(raw)
	if jsonMode && len(calls) == 0 {
		if v, ok := generations.ParseJSONFallback(resp.Content); ok {
			resp.Structured = v
		}
	}
	return resp, nil
}

func decodeInput(data []byte) any {
	if len(data) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

// turn is one normalized conversation turn.
type turn struct {
	role generations.Role
	text string
}

// history normalizes prev. Only user and assistant turns exist on Bedrock; system records become user turns.
func history(prev []any) []turn {
	msgs := generations.NormalizeMessages(prev)
	out := make([]turn, 0, len(msgs))
	for _, m := range msgs {
		role := generations.RoleUser
		if m.Role == generations.RoleAssistant {
			role = generations.RoleAssistant
		}
		out = append(out, turn{role: role, text: m.Content})
	}
	return out
}

// mergeTurns joins consecutive turns of the same role; both Bedrock APIs require alternation.
func mergeTurns(turns []turn) []turn {
	out := make([]turn, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].role == t.role {
			out[n-1].text += "\n\n" + t.text
			continue
		}
		out = append(out, t)
	}
	return out
}
