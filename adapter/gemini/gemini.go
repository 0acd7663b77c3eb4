package gemini

import (
	"context"
	"iter"
	"math"
	"net/http"
	"strings"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
	"github.com/skosovsky/generations/credentials"
	"github.com/skosovsky/generations/internal/cast"

	"google.golang.org/genai"
)

// Provider defaults.
const (
	DefaultModel           = "gemini-pro"
	DefaultEmbeddingModel  = "text-embedding-004"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048
	// EmbeddingTaskType is sent with every embedding request.
	EmbeddingTaskType = "RETRIEVAL_DOCUMENT"
	// APIKeyEnv is the credential key.
	APIKeyEnv = "GOOGLEGENAI_API_KEY"
)

// Models is the subset of *genai.Models used by the adapter.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// ModelsFactory builds a Models client for one call's API key.
type ModelsFactory func(ctx context.Context, apiKey string) (Models, error)

// Request wraps Model, Contents and Config for the GenerateContent API.
type Request struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Adapter implements adapter.Adapter for the Google Gemini (genai) API.
// Stream chunks carry *genai.GenerateContentResponse in Chunk.Raw.
type Adapter struct {
	adapter.Unsupported
	creds      *credentials.Resolver
	factory    ModelsFactory
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

// WithBaseURL points the genai client at another endpoint.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

// WithHTTPClient sets the HTTP client of the genai client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithCredentials sets the credential resolver. The default reads the process environment.
func WithCredentials(r *credentials.Resolver) Option {
	return func(a *Adapter) { a.creds = r }
}

// WithModelsFactory replaces the genai client construction, mainly for tests.
func WithModelsFactory(f ModelsFactory) Option {
	return func(a *Adapter) { a.factory = f }
}

// New returns an Adapter with the provider defaults.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		Unsupported: adapter.Unsupported{Name: generations.ProviderGoogle},
		model:       DefaultModel,
		embedModel:  DefaultEmbeddingModel,
		system:      adapter.DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.factory == nil {
		a.factory = a.newModels
	}
	return a
}

func (a *Adapter) newModels(ctx context.Context, apiKey string) (Models, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	}
	if a.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Provider implements adapter.Adapter.
func (a *Adapter) Provider() generations.Provider { return generations.ProviderGoogle }

// Supports implements adapter.Adapter.
func (a *Adapter) Supports(op generations.Operation) bool {
	switch op {
	case generations.OpGenerate, generations.OpGenerateWithTools, generations.OpEmbedding:
		return true
	default:
		return false
	}
}

func (a *Adapter) models(ctx context.Context, override generations.Credentials, op generations.Operation) (Models, error) {
	keys, err := a.creds.Require(generations.ProviderGoogle, override, APIKeyEnv)
	if err != nil {
		return nil, err
	}
	m, err := a.factory(ctx, keys[APIKeyEnv])
	if err != nil {
		return nil, generations.Upstream(generations.ProviderGoogle, op, err)
	}
	return m, nil
}

// Translate converts req into a GenerateContent request.
func (a *Adapter) Translate(req *generations.GenerateRequest) (*Request, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = a.model
	}
	temp := float32(req.TemperatureOr(DefaultTemperature))
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: clampInt32(req.MaxTokensOr(DefaultMaxOutputTokens)),
	}
	var systemParts []string
	var contents []*genai.Content
	for _, msg := range req.Conversation(a.system) {
		switch msg.Role {
		case generations.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case generations.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	config.Tools = translateTools(req.Tools)
	if req.JSONMode || req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		if doc := req.ResponseSchema.Document(); doc != nil {
			config.ResponseSchema = toGenaiSchema(doc)
		}
	}
	return &Request{Model: model, Contents: contents, Config: config}, nil
}

func translateTools(tools generations.Tools) []*genai.Tool {
	var out []*genai.Tool
	if tools.Has(generations.ToolGoogleSearch) {
		out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if tools.Has(generations.ToolCodeExecution) {
		out = append(out, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}
	if fns := tools.Functions(); len(fns) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(fns))
		for _, t := range fns {
			decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if t.Parameters != nil {
				decl.ParametersJsonSchema = t.Parameters
			}
			decls = append(decls, decl)
		}
		out = append(out, &genai.Tool{FunctionDeclarations: decls})
	}
	return out
}

func clampInt32(n int64) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

// Generate implements adapter.Adapter. In JSON mode Response.Structured holds the parsed content.
func (a *Adapter) Generate(ctx context.Context, req *generations.GenerateRequest) (*generations.Response, error) {
	greq, err := a.Translate(req)
	if err != nil {
		return nil, err
	}
	m, err := a.models(ctx, req.Credentials, generations.OpGenerate)
	if err != nil {
		return nil, err
	}
	res, err := m.GenerateContent(ctx, greq.Model, greq.Contents, greq.Config)
	if err != nil {
		return nil, generations.Upstream(generations.ProviderGoogle, generations.OpGenerate, err)
	}
	return ParseResponse(res, greq.Config.ResponseMIMEType == "application/json")
}

// ParseResponse normalizes a GenerateContent response. structured requests a JSON parse of the content.
func ParseResponse(res *genai.GenerateContentResponse, structured bool) (*generations.Response, error) {
	if res == nil {
		return nil, adapter.ErrInvalidResponse
	}
	raw, err := adapter.ToRawResult(res)
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

// GenerateStream implements adapter.Adapter. The genai stream is opened on first iteration;
// breaking out of the loop stops it.
func (a *Adapter) GenerateStream(ctx context.Context, req *generations.GenerateRequest) (*generations.Stream, error) {
	greq, err := a.Translate(req)
	if err != nil {
		return nil, err
	}
	m, err := a.models(ctx, req.Credentials, generations.OpGenerate)
	if err != nil {
		return nil, err
	}
	return generations.NewStream(func(yield func(generations.Chunk, error) bool) {
		for res, err := range m.GenerateContentStream(ctx, greq.Model, greq.Contents, greq.Config) {
			if err != nil {
				yield(generations.Chunk{}, generations.Upstream(generations.ProviderGoogle, generations.OpGenerate, err))
				return
			}
			chunk, err := chunkFrom(res)
			if err != nil {
				yield(generations.Chunk{}, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}), nil
}

func chunkFrom(res *genai.GenerateContentResponse) (generations.Chunk, error) {
	raw, err := adapter.ToRawResult(res)
	if err != nil {
		return generations.Chunk{}, err
	}
	norm := generations.FormatToolResponse(raw)
	chunk := generations.Chunk{Content: norm.Content, ToolCalls: norm.ToolCalls, Raw: res}
	chunk.FinishReason, _ = cast.LookupString(map[string]any(raw), "candidates", "0", "finishReason")
	if u := res.UsageMetadata; u != nil {
		chunk.Usage = &generations.Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
			TotalTokens:  int64(u.TotalTokenCount),
		}
	}
	return chunk, nil
}

// Embed implements adapter.Adapter with one request for single and batch inputs.
func (a *Adapter) Embed(ctx context.Context, req *generations.EmbedRequest) (generations.Embedding, error) {
	if err := req.Validate(); err != nil {
		return generations.Embedding{}, err
	}
	m, err := a.models(ctx, req.Credentials, generations.OpEmbedding)
	if err != nil {
		return generations.Embedding{}, err
	}
	model := req.Model
	if model == "" {
		model = a.embedModel
	}
	texts := req.Input.Texts()
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	res, err := m.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{TaskType: EmbeddingTaskType})
	if err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderGoogle, generations.OpEmbedding, err)
	}
	vectors := make([]generations.Vector, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, generations.Vector(e.Values))
	}
	emb, err := generations.NewEmbedding(req.Input, vectors)
	if err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderGoogle, generations.OpEmbedding, err)
	}
	return emb, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
