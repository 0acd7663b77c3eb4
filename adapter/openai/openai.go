package openai

import (
	"context"
	"net/http"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
	"github.com/skosovsky/generations/credentials"
)

// Provider defaults.
const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTemperature    = 0.7
	// APIKeyEnv is the credential key.
	APIKeyEnv = "OPENAI_API_KEY"
)

// Adapter implements adapter.Adapter for the OpenAI Chat Completions and Embeddings APIs.
// Stream chunks carry openai.ChatCompletionChunk in Chunk.Raw.
type Adapter struct {
	adapter.Unsupported
	creds      *credentials.Resolver
	baseURL    string
	httpClient *http.Client
	model      string
	embedModel string
	system     string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithModel sets the chat model used when a request has none. Empty keeps the default.
func WithModel(m string) Option {
	return func(a *Adapter) {
		if m != "" {
			a.model = m
		}
	}
}

// WithEmbeddingModel sets the embedding model used when a request has none. Empty keeps the default.
func WithEmbeddingModel(m string) Option {
	return func(a *Adapter) {
		if m != "" {
			a.embedModel = m
		}
	}
}

// WithBaseURL points the client at another endpoint (proxies, tests).
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithCredentials sets the credential resolver. The default reads the process environment.
func WithCredentials(r *credentials.Resolver) Option {
	return func(a *Adapter) { a.creds = r }
}

// New returns an Adapter with the provider defaults.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		Unsupported: adapter.Unsupported{Name: generations.ProviderOpenAI},
		model:       DefaultModel,
		embedModel:  DefaultEmbeddingModel,
		system:      adapter.DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements adapter.Adapter.
func (a *Adapter) Provider() generations.Provider { return generations.ProviderOpenAI }

// Supports implements adapter.Adapter.
func (a *Adapter) Supports(op generations.Operation) bool {
	switch op {
	case generations.OpGenerate, generations.OpGenerateWithTools, generations.OpEmbedding:
		return true
	default:
		return false
	}
}

func (a *Adapter) client(override generations.Credentials) (openai.Client, error) {
	keys, err := a.creds.Require(generations.ProviderOpenAI, override, APIKeyEnv)
	if err != nil {
		return openai.Client{}, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(keys[APIKeyEnv]),
		option.WithMaxRetries(0),
	}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	if a.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(a.httpClient))
	}
	return openai.NewClient(opts...), nil
}

// Translate converts req into chat completion params. Builtin tools have no OpenAI equivalent and are dropped.
func (a *Adapter) Translate(req *generations.GenerateRequest) (*openai.ChatCompletionNewParams, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = a.model
	}
	params := &openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Temperature: openai.Float(req.TemperatureOr(DefaultTemperature)),
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(*req.MaxTokens)
	}
	for _, msg := range req.Conversation(a.system) {
		params.Messages = append(params.Messages, messageToUnion(msg))
	}
	for _, t := range req.Tools.Functions() {
		def := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			def.Description = openai.String(t.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(def))
	}
	if req.JSONMode || req.ResponseSchema != nil {
		doc, name, strict := adapter.StructuredSchema(req.ResponseSchema)
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   name,
			Schema: doc,
			Strict: openai.Bool(strict),
		}
		if req.ResponseSchema != nil && req.ResponseSchema.Description != "" {
			schema.Description = openai.String(req.ResponseSchema.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}
	return params, nil
}

func messageToUnion(msg generations.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case generations.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case generations.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

// Generate implements adapter.Adapter. In JSON mode Response.Structured holds the parsed content.
func (a *Adapter) Generate(ctx context.Context, req *generations.GenerateRequest) (*generations.Response, error) {
	params, err := a.Translate(req)
	if err != nil {
		return nil, err
	}
	client, err := a.client(req.Credentials)
	if err != nil {
		return nil, err
	}
	completion, err := client.Chat.Completions.New(ctx, *params)
	if err != nil {
		return nil, generations.Upstream(generations.ProviderOpenAI, generations.OpGenerate, err)
	}
	return ParseResponse(completion, req.JSONMode || req.ResponseSchema != nil)
}

// ParseResponse normalizes a chat completion. structured requests a JSON parse of the content.
func ParseResponse(completion *openai.ChatCompletion, structured bool) (*generations.Response, error) {
	if completion == nil {
		return nil, adapter.ErrInvalidResponse
	}
	var raw generations.RawResult
	var err error
	if js := completion.RawJSON(); js != "" {
		raw, err = adapter.DecodeRawResult([]byte(js))
	} else {
		raw, err = adapter.ToRawResult(completion)
	}
	if err != nil {
		return nil, err
	}
	resp := generations.FormatToolResponse(raw)
	if structured {
		if v, ok := generations.ParseJSONFallback(resp.Content); ok {
			resp.Structured = v
		}
	}
	return resp, nil
}

// GenerateStream implements adapter.Adapter. The HTTP stream opens on first iteration and is closed
// when the loop ends. Tool call fragments are assembled and delivered on the chunk carrying the finish reason.
func (a *Adapter) GenerateStream(ctx context.Context, req *generations.GenerateRequest) (*generations.Stream, error) {
	params, err := a.Translate(req)
	if err != nil {
		return nil, err
	}
	client, err := a.client(req.Credentials)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	return generations.NewStream(func(yield func(generations.Chunk, error) bool) {
		stream := client.Chat.Completions.NewStreaming(ctx, *params)
		defer stream.Close()
		calls := toolCallAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			out := generations.Chunk{Raw: chunk}
			for _, choice := range chunk.Choices {
				out.Content += choice.Delta.Content
				calls.add(choice.Delta.ToolCalls)
				if choice.FinishReason != "" {
					out.FinishReason = choice.FinishReason
					out.ToolCalls = calls.flush()
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				out.Usage = &generations.Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
					TotalTokens:  chunk.Usage.TotalTokens,
				}
			}
			if !yield(out, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(generations.Chunk{}, generations.Upstream(generations.ProviderOpenAI, generations.OpGenerate, err))
		}
	}), nil
}

type partialCall struct {
	id, name, args string
}

// toolCallAccumulator joins streamed tool call deltas by index.
type toolCallAccumulator map[int64]*partialCall

func (acc toolCallAccumulator) add(deltas []openai.ChatCompletionChunkChoiceDeltaToolCall) {
	for _, d := range deltas {
		pc, ok := acc[d.Index]
		if !ok {
			pc = &partialCall{}
			acc[d.Index] = pc
		}
		if d.ID != "" {
			pc.id = d.ID
		}
		if d.Function.Name != "" {
			pc.name = d.Function.Name
		}
		pc.args += d.Function.Arguments
	}
}

func (acc toolCallAccumulator) flush() []generations.ToolCall {
	if len(acc) == 0 {
		return nil
	}
	idx := make([]int64, 0, len(acc))
	for i := range acc {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	out := make([]generations.ToolCall, 0, len(idx))
	for _, i := range idx {
		pc := acc[i]
		rec := map[string]any{
			"type":     "function",
			"id":       pc.id,
			"function": map[string]any{"name": pc.name, "arguments": pc.args},
		}
		resp := generations.FormatToolResponse(generations.RawResult{"toolCalls": []any{rec}})
		out = append(out, resp.ToolCalls...)
		delete(acc, i)
	}
	return out
}

// Embed implements adapter.Adapter with one request for single and batch inputs.
func (a *Adapter) Embed(ctx context.Context, req *generations.EmbedRequest) (generations.Embedding, error) {
	if err := req.Validate(); err != nil {
		return generations.Embedding{}, err
	}
	client, err := a.client(req.Credentials)
	if err != nil {
		return generations.Embedding{}, err
	}
	model := req.Model
	if model == "" {
		model = a.embedModel
	}
	texts := req.Input.Texts()
	res, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderOpenAI, generations.OpEmbedding, err)
	}
	vectors := make([]generations.Vector, len(texts))
	for _, d := range res.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			continue
		}
		v := make(generations.Vector, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vectors[d.Index] = v
	}
	emb, err := generations.NewEmbedding(req.Input, vectors)
	if err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderOpenAI, generations.OpEmbedding, err)
	}
	return emb, nil
}

// Compile-time check that Adapter implements adapter.Adapter.
var _ adapter.Adapter = (*Adapter)(nil)
