package bedrock

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/polly"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
	"github.com/skosovsky/generations/credentials"
	"github.com/skosovsky/generations/mediafetch"
)

// Provider defaults.
const (
	DefaultModel          = "anthropic.claude-3-5-haiku-serverless"
	DefaultSystem         = "You are a helpful assistant."
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 4096
	DefaultRegion         = "us-east-1"
	DefaultLLMModel       = "anthropic.claude-instant-v1"
	DefaultEmbeddingModel = "amazon.titan-embed-text-v1"
	DefaultImageModel     = "meta.llama3-2-11b-instruct-v1:0"
	DefaultImageSystem    = "You are a helpful assistant that can understand both text and images."
	// DefaultEmbedConcurrency bounds in-flight embedding calls of one batch.
	DefaultEmbedConcurrency = 4
)

// Credential keys.
const (
	AccessKeyIDEnv     = "AWS_ACCESS_KEY_ID"
	SecretAccessKeyEnv = "AWS_SECRET_ACCESS_KEY"
	SessionTokenEnv    = "AWS_SESSION_TOKEN"
	RegionEnv          = "AWS_REGION"
)

// Runtime is the subset of *bedrockruntime.Client used by the adapter.
type Runtime interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Speech is the subset of *polly.Client used by the adapter.
type Speech interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// EventStream is the event reader of a ConverseStream call. *bedrockruntime.ConverseStreamEventStream implements it.
type EventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// Adapter implements adapter.Adapter for Amazon Bedrock and Polly.
// Stream chunks carry types.ConverseStreamOutput in Chunk.Raw, or *generations.Response on the native path.
type Adapter struct {
	creds      *credentials.Resolver
	httpClient *http.Client
	endpoint   string
	region     string
	model      string
	system     string
	embedModel string
	embedLimit int
	speech     SpeechDefaults
	images     mediafetch.Loader
	newRuntime func(aws.Config) Runtime
	newSpeech  func(aws.Config) Speech
	openEvents func(*bedrockruntime.ConverseStreamOutput) EventStream
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

// WithRegion sets the region used when neither the request nor AWS_REGION names one.
func WithRegion(r string) Option {
	return func(a *Adapter) {
		if r != "" {
			a.region = r
		}
	}
}

// WithEndpoint overrides the service endpoint (VPC endpoints, tests).
func WithEndpoint(u string) Option {
	return func(a *Adapter) { a.endpoint = u }
}

// WithHTTPClient sets the HTTP client of the AWS clients and of remote image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = c
		a.images.Client = c
	}
}

// WithCredentials sets the credential resolver. The default reads the process environment.
func WithCredentials(r *credentials.Resolver) Option {
	return func(a *Adapter) { a.creds = r }
}

// WithEmbedConcurrency bounds concurrent embedding calls for batch input.
func WithEmbedConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.embedLimit = n
		}
	}
}

// WithSpeechDefaults replaces the text-to-speech defaults. Empty fields keep the built-in values.
func WithSpeechDefaults(d SpeechDefaults) Option {
	return func(a *Adapter) { a.speech = d.withFallback(defaultSpeech) }
}

// WithRuntime replaces the Bedrock runtime client constructor.
func WithRuntime(fn func(aws.Config) Runtime) Option {
	return func(a *Adapter) { a.newRuntime = fn }
}

// WithSpeech replaces the Polly client constructor.
func WithSpeech(fn func(aws.Config) Speech) Option {
	return func(a *Adapter) { a.newSpeech = fn }
}

// New returns an Adapter with the provider defaults.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		region:     DefaultRegion,
		model:      DefaultModel,
		system:     DefaultSystem,
		embedModel: DefaultEmbeddingModel,
		embedLimit: DefaultEmbedConcurrency,
		speech:     defaultSpeech,
		newRuntime: func(cfg aws.Config) Runtime { return bedrockruntime.NewFromConfig(cfg) },
		newSpeech:  func(cfg aws.Config) Speech { return polly.NewFromConfig(cfg) },
		openEvents: func(out *bedrockruntime.ConverseStreamOutput) EventStream { return out.GetStream() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements adapter.Adapter.
func (a *Adapter) Provider() generations.Provider { return generations.ProviderBedrock }

// Supports implements adapter.Adapter. Every operation is available.
func (a *Adapter) Supports(generations.Operation) bool { return true }

// awsConfig builds the client configuration. The region comes from the request, then AWS_REGION,
// then the adapter default.
func (a *Adapter) awsConfig(override generations.Credentials, region string) (aws.Config, error) {
	keys, err := a.creds.Require(generations.ProviderBedrock, override, AccessKeyIDEnv, SecretAccessKeyEnv)
	if err != nil {
		return aws.Config{}, err
	}
	if region == "" {
		region = a.creds.Get(RegionEnv, override, a.region)
	}
	provider := awscreds.NewStaticCredentialsProvider(
		keys[AccessKeyIDEnv], keys[SecretAccessKeyEnv], a.creds.Get(SessionTokenEnv, override, ""))
	cfg := aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(provider),
	}
	if a.httpClient != nil {
		cfg.HTTPClient = a.httpClient
	}
	if a.endpoint != "" {
		cfg.BaseEndpoint = aws.String(a.endpoint)
	}
	return cfg, nil
}

func (a *Adapter) runtime(req *generations.GenerateRequest) (Runtime, error) {
	cfg, err := a.awsConfig(req.Credentials, req.Region)
	if err != nil {
		return nil, err
	}
	return a.newRuntime(cfg), nil
}

// Route names the Bedrock API a generate request is sent to.
type Route int

// Routes.
const (
	// RouteConverse is a Converse chat with the system prompt folded into the user turn.
	RouteConverse Route = iota
	// RouteConverseTools is a Converse chat with a tool configuration.
	RouteConverseTools
	// RouteNative is an InvokeModel call with an Anthropic Messages body. It cannot stream.
	RouteNative
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteConverseTools:
		return "converse-tools"
	case RouteNative:
		return "native"
	default:
		return "converse"
	}
}

// Route picks the API for req. Predefined tools need the native body. Other tools go to Converse.
// Claude models asking for JSON output, or served through an inference profile, take the native
// body when the model is known.
func (a *Adapter) Route(req *generations.GenerateRequest) Route {
	if len(req.Tools) > 0 {
		if req.Tools.HasPredefined() {
			return RouteNative
		}
		return RouteConverseTools
	}
	model := a.modelOf(req)
	profile := RequiresInferenceProfile(model)
	if IsClaude(model) && (req.JSONMode || req.ResponseSchema != nil || profile) {
		if _, known := ResolveModel(model); known || profile {
			return RouteNative
		}
	}
	return RouteConverse
}

func (a *Adapter) modelOf(req *generations.GenerateRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return a.model
}

func (a *Adapter) systemOf(req *generations.GenerateRequest) string {
	if req.System != "" {
		return req.System
	}
	return a.system
}

// Generate implements adapter.Adapter.
func (a *Adapter) Generate(ctx context.Context, req *generations.GenerateRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rt, err := a.runtime(req)
	if err != nil {
		return nil, err
	}
	if a.Route(req) == RouteNative {
		return a.invokeNative(ctx, rt, req)
	}
	in, err := a.ConverseInput(req)
	if err != nil {
		return nil, err
	}
	out, err := rt.Converse(ctx, in)
	if err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpGenerate, err)
	}
	return ParseConverse(out, req.JSONMode || req.ResponseSchema != nil)
}

// GenerateStream implements adapter.Adapter. Converse routes stream through ConverseStream, opened
// on first iteration. The native route returns the buffered response as a single chunk.
func (a *Adapter) GenerateStream(ctx context.Context, req *generations.GenerateRequest) (*generations.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if a.Route(req) == RouteNative {
		resp, err := a.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return generations.SingleChunkStream(resp), nil
	}
	rt, err := a.runtime(req)
	if err != nil {
		return nil, err
	}
	in, err := a.ConverseInput(req)
	if err != nil {
		return nil, err
	}
	return a.converseStream(ctx, rt, streamInput(in)), nil
}

// Compile-time check that Adapter implements adapter.Adapter.
var _ adapter.Adapter = (*Adapter)(nil)
