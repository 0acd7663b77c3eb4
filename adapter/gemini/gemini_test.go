package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeModels struct {
	res      *genai.GenerateContentResponse
	stream   []*genai.GenerateContentResponse
	embed    *genai.EmbedContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	embedCfg *genai.EmbedContentConfig
	pulled   int
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.res, f.err
}

func (f *fakeModels) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.model, f.contents, f.config = model, contents, config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range f.stream {
			f.pulled++
			if !yield(r, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model, f.contents, f.embedCfg = model, contents, config
	return f.embed, f.err
}

func newTestAdapter(f *fakeModels) *Adapter {
	return New(
		WithCredentials(credentials.New(
			credentials.WithLookupEnv(func(string) (string, bool) { return "", false }),
			credentials.WithFallback(map[string]string{APIKeyEnv: "key"}),
		)),
		WithModelsFactory(func(_ context.Context, apiKey string) (Models, error) {
			if apiKey != "key" {
				return nil, errors.New("unexpected api key")
			}
			return f, nil
		}),
	)
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 4, CandidatesTokenCount: 6, TotalTokenCount: 10,
		},
	}
}

func ExampleAdapter_Translate() {
	req, _ := New().Translate(&generations.GenerateRequest{Message: "Hello"})
	fmt.Println(req.Model, req.Contents[0].Parts[0].Text)
	// Output: gemini-pro Hello
}

func TestTranslate_Defaults(t *testing.T) {
	t.Parallel()
	req, err := New().Translate(&generations.GenerateRequest{
		Message: "Hi",
		Prev: []any{
			map[string]any{"role": "human", "content": "before"},
			map[string]any{"role": "ai", "content": "reply"},
		},
	})
	require.NoError(t, err)
	require.Len(t, req.Contents, 3)
	assert.Equal(t, string(genai.RoleUser), req.Contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), req.Contents[1].Role)
	assert.Equal(t, "Hi", req.Contents[2].Parts[0].Text)
	require.NotNil(t, req.Config.SystemInstruction)
	assert.Contains(t, req.Config.SystemInstruction.Parts[0].Text, "Never explain what you do")
	assert.Equal(t, int32(DefaultMaxOutputTokens), req.Config.MaxOutputTokens)
	require.NotNil(t, req.Config.Temperature)
	assert.InDelta(t, 0.7, *req.Config.Temperature, 1e-6)
	assert.Empty(t, req.Config.Tools)
	assert.Empty(t, req.Config.ResponseMIMEType)
}

func TestTranslate_Tools(t *testing.T) {
	t.Parallel()
	req, err := New().Translate(&generations.GenerateRequest{
		Message: "Hi",
		Tools: generations.Tools{
			generations.BuiltinTool(generations.ToolGoogleSearch, nil),
			generations.BuiltinTool(generations.ToolCodeExecution, nil),
			generations.FunctionTool("weather", "get weather", map[string]any{"type": "object"}),
		},
	})
	require.NoError(t, err)
	require.Len(t, req.Config.Tools, 3)
	assert.NotNil(t, req.Config.Tools[0].GoogleSearch)
	assert.NotNil(t, req.Config.Tools[1].CodeExecution)
	require.Len(t, req.Config.Tools[2].FunctionDeclarations, 1)
	assert.Equal(t, "weather", req.Config.Tools[2].FunctionDeclarations[0].Name)
	assert.Equal(t, map[string]any{"type": "object"}, req.Config.Tools[2].FunctionDeclarations[0].ParametersJsonSchema)
}

func TestTranslate_MaxTokensTruncationGuard(t *testing.T) {
	t.Parallel()
	big := int64(1) << 40
	req, err := New().Translate(&generations.GenerateRequest{Message: "x", MaxTokens: &big})
	require.NoError(t, err)
	assert.Equal(t, int32(2147483647), req.Config.MaxOutputTokens)
}

func TestTranslate_JSONModeSchema(t *testing.T) {
	t.Parallel()
	req, err := New().Translate(&generations.GenerateRequest{
		Message:  "x",
		JSONMode: true,
		ResponseSchema: &generations.Schema{Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tags":  map[string]any{"type": "array"},
				"score": map[string]any{"type": "number", "description": "0..1"},
			},
			"required": []any{"score"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)
	s := req.Config.ResponseSchema
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"score"}, s.Required)
	require.NotNil(t, s.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, "0..1", s.Properties["score"].Description)
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	f := &fakeModels{res: textResponse(genai.NewPartFromText("Hello "), genai.NewPartFromText("world"))}
	resp, err := newTestAdapter(f).Generate(context.Background(), &generations.GenerateRequest{Model: "gemini-2.0-flash", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", f.model)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, generations.FinishStop, resp.Metadata.FinishReason)
	assert.Equal(t, generations.Usage{InputTokens: 4, OutputTokens: 6, TotalTokens: 10}, resp.Metadata.Usage)
}

func TestGenerate_FunctionCallAndGrounding(t *testing.T) {
	t.Parallel()
	res := textResponse(genai.NewPartFromFunctionCall("weather", map[string]any{"city": "Oslo"}))
	res.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{WebSearchQueries: []string{"oslo weather"}}
	f := &fakeModels{res: res}
	resp, err := newTestAdapter(f).Generate(context.Background(), &generations.GenerateRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, generations.FinishToolUse, resp.Metadata.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "weather", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"city": "Oslo"}, resp.ToolCalls[0].Args)
	require.NotNil(t, resp.GroundingMetadata)
	assert.Equal(t, []any{"oslo weather"}, resp.GroundingMetadata.WebSearchQueries)
}

func TestGenerate_CodeExecution(t *testing.T) {
	t.Parallel()
	res := textResponse(
		&genai.Part{ExecutableCode: &genai.ExecutableCode{Code: "print(2)", Language: genai.LanguagePython}},
		&genai.Part{CodeExecutionResult: &genai.CodeExecutionResult{Outcome: genai.OutcomeOK, Output: "2"}},
		genai.NewPartFromText("The answer is 2"),
	)
	resp, err := newTestAdapter(&fakeModels{res: res}).Generate(context.Background(), &generations.GenerateRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 2", resp.Content)
	require.Len(t, resp.CodeExecution, 2)
	assert.Equal(t, "print(2)", resp.CodeExecution[0].ExecutableCode.Code)
	assert.Equal(t, "OUTCOME_OK", resp.CodeExecution[1].CodeExecutionResult.Outcome)
}

func TestGenerate_JSONModeFallback(t *testing.T) {
	t.Parallel()
	ok := &fakeModels{res: textResponse(genai.NewPartFromText(`{"a":1}`))}
	resp, err := newTestAdapter(ok).Generate(context.Background(), &generations.GenerateRequest{Message: "x", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, resp.Structured)

	bad := &fakeModels{res: textResponse(genai.NewPartFromText("no json here"))}
	resp, err = newTestAdapter(bad).Generate(context.Background(), &generations.GenerateRequest{Message: "x", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "no json here", resp.Content)
	assert.Nil(t, resp.Structured)
}

func TestGenerate_UpstreamError(t *testing.T) {
	t.Parallel()
	native := errors.New("permission denied")
	_, err := newTestAdapter(&fakeModels{err: native}).Generate(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.ErrorIs(t, err, native)
	var ue *generations.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, generations.ProviderGoogle, ue.Provider)
}

func TestGenerate_MissingCredential(t *testing.T) {
	t.Parallel()
	f := &fakeModels{}
	a := New(
		WithCredentials(credentials.New(credentials.WithLookupEnv(func(string) (string, bool) { return "", false }))),
		WithModelsFactory(func(context.Context, string) (Models, error) { return f, nil }),
	)
	_, err := a.Generate(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.ErrorIs(t, err, generations.ErrMissingCredential)
	assert.Contains(t, err.Error(), APIKeyEnv)
	assert.Empty(t, f.model)
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()
	first := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText("Hel")}},
	}}}
	f := &fakeModels{stream: []*genai.GenerateContentResponse{first, textResponse(genai.NewPartFromText("lo"))}}
	stream, err := newTestAdapter(f).GenerateStream(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.NoError(t, err)
	var chunks []generations.Chunk
	for c, err := range stream.Iter() {
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Empty(t, chunks[0].FinishReason)
	assert.Equal(t, "STOP", chunks[1].FinishReason)
	assert.Same(t, first, chunks[0].Raw)
	assert.Equal(t, int64(10), chunks[1].Usage.TotalTokens)
}

func TestGenerateStream_EarlyBreakAndError(t *testing.T) {
	t.Parallel()
	f := &fakeModels{stream: []*genai.GenerateContentResponse{
		textResponse(genai.NewPartFromText("a")),
		textResponse(genai.NewPartFromText("b")),
	}}
	stream, err := newTestAdapter(f).GenerateStream(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.NoError(t, err)
	for range stream.Iter() {
		break
	}
	assert.Equal(t, 1, f.pulled)

	failing := &fakeModels{err: errors.New("reset")}
	stream, err = newTestAdapter(failing).GenerateStream(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.NoError(t, err)
	_, err = stream.Collect()
	var ue *generations.UpstreamError
	require.ErrorAs(t, err, &ue)
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	f := &fakeModels{embed: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{
		{Values: []float32{0.1, 0.2}},
		{Values: []float32{0.3, 0.4}},
	}}}
	emb, err := newTestAdapter(f).Embed(context.Background(), &generations.EmbedRequest{Input: generations.BatchInput("a", "b")})
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbeddingModel, f.model)
	assert.Equal(t, EmbeddingTaskType, f.embedCfg.TaskType)
	vs, ok := emb.Batch()
	require.True(t, ok)
	assert.Equal(t, []generations.Vector{{0.1, 0.2}, {0.3, 0.4}}, vs)

	single := &fakeModels{embed: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}}}}
	emb, err = newTestAdapter(single).Embed(context.Background(), &generations.EmbedRequest{Input: generations.SingleInput("a")})
	require.NoError(t, err)
	v, ok := emb.Single()
	require.True(t, ok)
	assert.Equal(t, generations.Vector{1}, v)
}

func TestEmbed_CardinalityMismatch(t *testing.T) {
	t.Parallel()
	f := &fakeModels{embed: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}}}}
	_, err := newTestAdapter(f).Embed(context.Background(), &generations.EmbedRequest{Input: generations.BatchInput("a", "b", "c")})
	var ue *generations.UpstreamError
	require.ErrorAs(t, err, &ue)
}

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()
	a := New()
	for _, op := range []generations.Operation{generations.OpGenerateWithImage, generations.OpLLM, generations.OpTextToSpeech} {
		assert.False(t, a.Supports(op), op)
	}
	_, err := a.TextToSpeech(context.Background(), &generations.SpeechRequest{Text: "x"})
	require.ErrorIs(t, err, generations.ErrUnsupportedOperation)
}
