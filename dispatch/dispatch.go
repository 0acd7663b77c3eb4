package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
	"github.com/skosovsky/generations/adapter/bedrock"
	"github.com/skosovsky/generations/adapter/gemini"
	"github.com/skosovsky/generations/adapter/openai"
	"github.com/skosovsky/generations/credentials"
)

// TracerName is the instrumentation scope of dispatch spans.
const TracerName = "github.com/skosovsky/generations/dispatch"

// Span attribute keys.
const (
	AttrProvider  = "generations.provider"
	AttrOperation = "generations.operation"
	AttrModel     = "generations.model"
	AttrRequestID = "generations.request_id"
)

// Client routes calls to exactly one adapter per provider. It is safe for concurrent use.
type Client struct {
	bedrock adapter.Adapter
	openai  adapter.Adapter
	google  adapter.Adapter

	creds  *credentials.Resolver
	logger *slog.Logger
	tracer trace.Tracer
	newID  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithBedrock replaces the bedrock adapter.
func WithBedrock(a adapter.Adapter) Option {
	return func(c *Client) { c.bedrock = a }
}

// WithOpenAI replaces the openai adapter.
func WithOpenAI(a adapter.Adapter) Option {
	return func(c *Client) { c.openai = a }
}

// WithGoogle replaces the google adapter.
func WithGoogle(a adapter.Adapter) Option {
	return func(c *Client) { c.google = a }
}

// WithCredentials sets the resolver handed to the default adapters.
// Adapters set through WithBedrock, WithOpenAI or WithGoogle keep their own.
func WithCredentials(r *credentials.Resolver) Option {
	return func(c *Client) { c.creds = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider. Default: the otel global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithRequestIDs replaces the request id generator (uuid v4 by default).
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New returns a Client. Providers without an explicit adapter get the package default built with
// the configured credential resolver.
func New(opts ...Option) *Client {
	c := &Client{
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer(TracerName),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bedrock == nil {
		c.bedrock = bedrock.New(bedrock.WithCredentials(c.creds))
	}
	if c.openai == nil {
		c.openai = openai.New(openai.WithCredentials(c.creds))
	}
	if c.google == nil {
		c.google = gemini.New(gemini.WithCredentials(c.creds))
	}
	return c
}

// ValidateProvider checks name against the closed provider set.
func ValidateProvider(name string) (generations.Provider, error) {
	return generations.ParseProvider(name)
}

func (c *Client) adapterFor(p generations.Provider) (adapter.Adapter, error) {
	switch p {
	case generations.ProviderBedrock:
		return c.bedrock, nil
	case generations.ProviderOpenAI:
		return c.openai, nil
	case generations.ProviderGoogle:
		return c.google, nil
	default:
		_, err := generations.ParseProvider(string(p))
		return nil, err
	}
}

// Capabilities lists the operations p supports, in Operations order.
func (c *Client) Capabilities(p generations.Provider) ([]generations.Operation, error) {
	a, err := c.adapterFor(p)
	if err != nil {
		return nil, err
	}
	var ops []generations.Operation
	for _, op := range generations.Operations() {
		if a.Supports(op) {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// call is the bookkeeping of one dispatched operation.
type call struct {
	c     *Client
	p     generations.Provider
	op    generations.Operation
	id    string
	start time.Time
	span  trace.Span
}

// begin resolves the adapter, checks support and opens the span. A failure is logged and returned.
func (c *Client) begin(ctx context.Context, p generations.Provider, op generations.Operation, model string) (context.Context, adapter.Adapter, *call, error) {
	id := c.newID()
	a, err := c.adapterFor(p)
	if err == nil && !a.Supports(op) {
		err = &generations.UnsupportedError{Provider: p, Operation: op}
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "generation rejected",
			slog.String("provider", string(p)), slog.String("operation", string(op)),
			slog.String("request_id", id), slog.Any("error", err))
		return ctx, nil, nil, err
	}
	ctx, span := c.tracer.Start(ctx, "generations."+string(op), trace.WithAttributes(
		attribute.String(AttrProvider, string(p)),
		attribute.String(AttrOperation, string(op)),
		attribute.String(AttrModel, model),
		attribute.String(AttrRequestID, id),
	))
	c.logger.DebugContext(ctx, "generation started",
		slog.String("provider", string(p)), slog.String("operation", string(op)),
		slog.String("model", model), slog.String("request_id", id))
	return ctx, a, &call{c: c, p: p, op: op, id: id, start: time.Now(), span: span}, nil
}

// end closes the span and logs the outcome. err is returned unchanged.
func (k *call) end(ctx context.Context, err error) error {
	defer k.span.End()
	attrs := []any{
		slog.String("provider", string(k.p)), slog.String("operation", string(k.op)),
		slog.String("request_id", k.id), slog.Duration("elapsed", time.Since(k.start)),
	}
	if err != nil {
		k.span.RecordError(err)
		k.span.SetStatus(codes.Error, err.Error())
		k.c.logger.ErrorContext(ctx, "generation failed", append(attrs, slog.Any("error", err))...)
		return err
	}
	k.c.logger.DebugContext(ctx, "generation finished", attrs...)
	return nil
}

// Generate runs a buffered chat call. The result is always the canonical envelope; Result picks
// the value an endpoint returns.
func (c *Client) Generate(ctx context.Context, p generations.Provider, req *generations.GenerateRequest) (*generations.Response, error) {
	return c.generate(ctx, p, generations.OpGenerate, req)
}

// GenerateWithTools runs a chat call that must carry tools.
func (c *Client) GenerateWithTools(ctx context.Context, p generations.Provider, req *generations.GenerateRequest) (*generations.Response, error) {
	if req != nil {
		if err := RequireTools(req); err != nil {
			return nil, err
		}
	}
	return c.generate(ctx, p, generations.OpGenerateWithTools, req)
}

// RequireTools fails with a ValidationError when req carries no tools.
func RequireTools(req *generations.GenerateRequest) error {
	if req == nil || len(req.Tools) == 0 {
		return &generations.ValidationError{Field: "tools", Err: generations.ErrMissingArgument}
	}
	return nil
}

func (c *Client) generate(ctx context.Context, p generations.Provider, op generations.Operation, req *generations.GenerateRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, a, k, err := c.begin(ctx, p, op, req.Model)
	if err != nil {
		return nil, err
	}
	resp, err := a.Generate(ctx, req)
	if err == nil && resp != nil {
		k.span.SetAttributes(
			attribute.Int64("generations.usage.input_tokens", resp.Metadata.Usage.InputTokens),
			attribute.Int64("generations.usage.output_tokens", resp.Metadata.Usage.OutputTokens),
		)
	}
	return resp, k.end(ctx, err)
}

// GenerateStream opens a streaming chat call. The span stays open until the stream is drained
// or the consumer breaks out of the loop.
func (c *Client) GenerateStream(ctx context.Context, p generations.Provider, req *generations.GenerateRequest) (*generations.Stream, error) {
	op := generations.OpGenerate
	if req != nil && len(req.Tools) > 0 {
		op = generations.OpGenerateWithTools
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, a, k, err := c.begin(ctx, p, op, req.Model)
	if err != nil {
		return nil, err
	}
	inner, err := a.GenerateStream(ctx, req)
	if err != nil {
		return nil, k.end(ctx, err)
	}
	return generations.NewStream(func(yield func(generations.Chunk, error) bool) {
		var failure error
		defer func() { _ = k.end(ctx, failure) }()
		for chunk, err := range inner.Iter() {
			if err != nil {
				failure = err
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}), nil
}

// GenerateWithImage runs an image-grounded chat call.
func (c *Client) GenerateWithImage(ctx context.Context, p generations.Provider, req *generations.ImageRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, a, k, err := c.begin(ctx, p, generations.OpGenerateWithImage, req.Model)
	if err != nil {
		return nil, err
	}
	resp, err := a.GenerateWithImage(ctx, req)
	return resp, k.end(ctx, err)
}

// Embed returns the embedding of req.Input. A result whose cardinality does not mirror the input
// fails with an UpstreamError.
func (c *Client) Embed(ctx context.Context, p generations.Provider, req *generations.EmbedRequest) (generations.Embedding, error) {
	if err := req.Validate(); err != nil {
		return generations.Embedding{}, err
	}
	ctx, a, k, err := c.begin(ctx, p, generations.OpEmbedding, req.Model)
	if err != nil {
		return generations.Embedding{}, err
	}
	emb, err := a.Embed(ctx, req)
	if err == nil && (emb.IsBatch() != req.Input.IsBatch() || emb.Len() != req.Input.Len()) {
		err = generations.Upstream(p, generations.OpEmbedding, fmt.Errorf("%w: got %d vectors for %d inputs",
			adapter.ErrInvalidResponse, emb.Len(), req.Input.Len()))
		emb = generations.Embedding{}
	}
	return emb, k.end(ctx, err)
}

// LLM runs a raw text completion.
func (c *Client) LLM(ctx context.Context, p generations.Provider, req *generations.LLMRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, a, k, err := c.begin(ctx, p, generations.OpLLM, req.Model)
	if err != nil {
		return nil, err
	}
	resp, err := a.LLM(ctx, req)
	return resp, k.end(ctx, err)
}

// TextToSpeech synthesizes req.Text and returns once the audio file is written.
func (c *Client) TextToSpeech(ctx context.Context, p generations.Provider, req *generations.SpeechRequest) (*generations.SpeechResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, a, k, err := c.begin(ctx, p, generations.OpTextToSpeech, "")
	if err != nil {
		return nil, err
	}
	res, err := a.TextToSpeech(ctx, req)
	return res, k.end(ctx, err)
}

// Result is the value a buffered generate call reports. Requests with tools get the canonical
// envelope. Plain requests get the parsed JSON-mode value when there is one, otherwise the
// concatenated text, or the envelope when the text is empty.
func Result(req *generations.GenerateRequest, resp *generations.Response) any {
	if resp == nil {
		return nil
	}
	if req != nil && len(req.Tools) > 0 {
		return resp
	}
	if resp.Structured != nil {
		return resp.Structured
	}
	if resp.Content != "" {
		return resp.Content
	}
	return resp
}
