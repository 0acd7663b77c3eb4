package bedrock

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
)

// ConverseInput builds the Converse call for the converse routes. With tools, the system prompt is a
// system block and function tools form the tool configuration; builtin tags are dropped. Without tools,
// the prompt is folded into the user turn as "System: ...\n\nUser: ...".
func (a *Adapter) ConverseInput(req *generations.GenerateRequest) (*bedrockruntime.ConverseInput, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	alias, _ := ResolveModel(a.modelOf(req))
	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(alias.Model),
		InferenceConfig: inferenceConfig(req),
	}
	system := a.systemOf(req)
	user := req.Message
	if len(req.Tools) > 0 {
		if system != "" {
			in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
		}
		if cfg := toolConfig(req.Tools); cfg != nil {
			in.ToolConfig = cfg
		}
	} else if system != "" {
		user = "System: " + system + "\n\nUser: " + req.Message
	}
	turns := mergeTurns(append(history(req.Prev), turn{role: generations.RoleUser, text: user}))
	in.Messages = converseMessages(turns)
	return in, nil
}

func inferenceConfig(req *generations.GenerateRequest) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{
		Temperature: aws.Float32(float32(req.TemperatureOr(DefaultTemperature))),
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(clampInt32(*req.MaxTokens))
	}
	return cfg
}

func clampInt32(n int64) int32 {
	const maxInt32 = 1<<31 - 1
	if n > maxInt32 {
		return maxInt32
	}
	return int32(n)
}

func toolConfig(tools generations.Tools) *types.ToolConfiguration {
	fns := tools.Functions()
	if len(fns) == 0 {
		return nil
	}
	cfg := &types.ToolConfiguration{}
	for _, t := range fns {
		spec := types.ToolSpecification{
			Name:        aws.String(t.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.Document()["input_schema"])},
		}
		if t.Description != "" {
			spec.Description = aws.String(t.Description)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: spec})
	}
	return cfg
}

func converseMessages(turns []turn) []types.Message {
	out := make([]types.Message, 0, len(turns))
	for _, t := range turns {
		role := types.ConversationRoleUser
		if t.role == generations.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: t.text}},
		})
	}
	return out
}

func streamInput(in *bedrockruntime.ConverseInput) *bedrockruntime.ConverseStreamInput {
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         in.ModelId,
		Messages:        in.Messages,
		System:          in.System,
		InferenceConfig: in.InferenceConfig,
		ToolConfig:      in.ToolConfig,
	}
}

// ParseConverse normalizes a Converse response. structured requests a lenient JSON parse of the text.
func ParseConverse(out *bedrockruntime.ConverseOutput, structured bool) (*generations.Response, error) {
	if out == nil {
		return nil, adapter.ErrInvalidResponse
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, adapter.ErrInvalidResponse
	}
	var text strings.Builder
	var calls []any
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			calls = append(calls, map[string]any{
				"type": "function",
				"name": aws.ToString(b.Value.Name),
				"id":   aws.ToString(b.Value.ToolUseId),
				"args": documentValue(b.Value.Input),
			})
		}
	}
	raw := generations.RawResult{
		"content":  text.String(),
		"metadata": map[string]any{"finishReason": string(out.StopReason), "usage": usageMap(out.Usage)},
	}
	if len(calls) > 0 {
		raw["toolCalls"] = calls
	}
	resp := generations.FormatToolResponse(raw)
	if structured && len(calls) == 0 {
		if v, ok := generations.ParseJSONFallback(resp.Content); ok {
			resp.Structured = v
		}
	}
	return resp, nil
}

func documentValue(d document.Interface) any {
	if d == nil {
		return map[string]any{}
	}
	data, err := d.MarshalSmithyDocument()
	if err != nil {
		return map[string]any{}
	}
	return decodeInput(data)
}

func usageOf(u *types.TokenUsage) generations.Usage {
	if u == nil {
		return generations.Usage{}
	}
	return generations.Usage{
		InputTokens:  int64(aws.ToInt32(u.InputTokens)),
		OutputTokens: int64(aws.ToInt32(u.OutputTokens)),
		TotalTokens:  int64(aws.ToInt32(u.TotalTokens)),
	}
}

func usageMap(u *types.TokenUsage) map[string]any {
	usage := usageOf(u)
	return map[string]any{
		"inputTokens":  usage.InputTokens,
		"outputTokens": usage.OutputTokens,
		"totalTokens":  usage.TotalTokens,
	}
}

func (a *Adapter) converseStream(ctx context.Context, rt Runtime, in *bedrockruntime.ConverseStreamInput) *generations.Stream {
	return generations.NewStream(func(yield func(generations.Chunk, error) bool) {
		out, err := rt.ConverseStream(ctx, in)
		if err != nil {
			yield(generations.Chunk{}, generations.Upstream(generations.ProviderBedrock, generations.OpGenerate, err))
			return
		}
		events := a.openEvents(out)
		defer func() { _ = events.Close() }()
		calls := toolUseAccumulator{}
		for ev := range events.Events() {
			chunk, ok := calls.chunk(ev)
			if !ok {
				continue
			}
			chunk.Raw = ev
			if !yield(chunk, nil) {
				return
			}
		}
		if err := events.Err(); err != nil {
			yield(generations.Chunk{}, generations.Upstream(generations.ProviderBedrock, generations.OpGenerate, err))
		}
	})
}

type partialToolUse struct {
	id, name string
	input    strings.Builder
}

// toolUseAccumulator joins tool use blocks by content block index until the message stops.
type toolUseAccumulator map[int32]*partialToolUse

func (acc toolUseAccumulator) at(idx *int32) *partialToolUse {
	i := aws.ToInt32(idx)
	p, ok := acc[i]
	if !ok {
		p = &partialToolUse{}
		acc[i] = p
	}
	return p
}

// chunk converts ev. Events that only feed the accumulator report false.
func (acc toolUseAccumulator) chunk(ev types.ConverseStreamOutput) (generations.Chunk, bool) {
	switch e := ev.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		if start, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			p := acc.at(e.Value.ContentBlockIndex)
			p.id = aws.ToString(start.Value.ToolUseId)
			p.name = aws.ToString(start.Value.Name)
		}
		return generations.Chunk{}, false
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch d := e.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return generations.Chunk{Content: d.Value}, true
		case *types.ContentBlockDeltaMemberToolUse:
			acc.at(e.Value.ContentBlockIndex).input.WriteString(aws.ToString(d.Value.Input))
		}
		return generations.Chunk{}, false
	case *types.ConverseStreamOutputMemberMessageStop:
		return generations.Chunk{FinishReason: string(e.Value.StopReason), ToolCalls: acc.flush()}, true
	case *types.ConverseStreamOutputMemberMetadata:
		usage := usageOf(e.Value.Usage)
		return generations.Chunk{Usage: &usage}, true
	default:
		return generations.Chunk{}, false
	}
}

func (acc toolUseAccumulator) flush() []generations.ToolCall {
	if len(acc) == 0 {
		return nil
	}
	idx := make([]int32, 0, len(acc))
	for i := range acc {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	out := make([]generations.ToolCall, 0, len(idx))
	for _, i := range idx {
		p := acc[i]
		var args any = map[string]any{}
		if s := p.input.String(); s != "" {
			if err := json.Unmarshal([]byte(s), &args); err != nil {
				args = s
			}
		}
		out = append(out, generations.ToolCall{Type: "function", Name: p.name, ID: p.id, Args: args})
		delete(acc, i)
	}
	return out
}
