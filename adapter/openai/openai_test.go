package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v3"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noEnv(string) (string, bool) { return "", false }

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	a := New(
		WithBaseURL(srv.URL+"/"),
		WithHTTPClient(srv.Client()),
		WithCredentials(credentials.New(
			credentials.WithLookupEnv(noEnv),
			credentials.WithFallback(map[string]string{APIKeyEnv: "sk-test"}),
		)),
	)
	return a, &hits
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if !assert.NoError(t, err) {
		return nil
	}
	var body map[string]any
	assert.NoError(t, json.Unmarshal(data, &body))
	return body
}

func ExampleAdapter_Translate() {
	a := New()
	params, _ := a.Translate(&generations.GenerateRequest{Message: "Hello"})
	fmt.Println(len(params.Messages), params.Messages[1].OfUser.Content.OfString.Value)
	// Output: 2 Hello
}

func TestTranslate_Defaults(t *testing.T) {
	t.Parallel()
	params, err := New().Translate(&generations.GenerateRequest{
		Message: "Hi",
		Prev:    []any{map[string]any{"role": "ai", "content": "earlier"}},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, string(params.Model))
	assert.InDelta(t, DefaultTemperature, params.Temperature.Value, 1e-9)
	require.Len(t, params.Messages, 3)
	require.NotNil(t, params.Messages[0].OfSystem)
	assert.Equal(t, "You are a helpful assistant. Never explain what you do, just provide the requested response.",
		params.Messages[0].OfSystem.Content.OfString.Value)
	assert.NotNil(t, params.Messages[1].OfAssistant)
	assert.NotNil(t, params.Messages[2].OfUser)
	assert.Nil(t, params.ResponseFormat.OfJSONSchema)
}

func TestTranslate_ToolsDropBuiltins(t *testing.T) {
	t.Parallel()
	params, err := New().Translate(&generations.GenerateRequest{
		Message: "Hi",
		Tools: generations.Tools{
			generations.FunctionTool("lookup", "find things", map[string]any{"type": "object"}),
			generations.BuiltinTool(generations.ToolGoogleSearch, nil),
		},
	})
	require.NoError(t, err)
	require.Len(t, params.Tools, 1)
	fn := params.Tools[0].OfFunction
	require.NotNil(t, fn)
	assert.Equal(t, "lookup", fn.Function.Name)
}

func TestTranslate_JSONMode(t *testing.T) {
	t.Parallel()
	params, err := New().Translate(&generations.GenerateRequest{Message: "Hi", JSONMode: true})
	require.NoError(t, err)
	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	js := params.ResponseFormat.OfJSONSchema.JSONSchema
	assert.Equal(t, "json_response", js.Name)
	assert.True(t, js.Strict.Value)

	strict := false
	params, err = New().Translate(&generations.GenerateRequest{
		Message: "Hi",
		ResponseSchema: &generations.Schema{
			Strict:     &strict,
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		},
	})
	require.NoError(t, err)
	js = params.ResponseFormat.OfJSONSchema.JSONSchema
	assert.Equal(t, "structured_output", js.Name)
	assert.False(t, js.Strict.Value)
	assert.Equal(t, true, js.Schema.(map[string]any)["additionalProperties"])
}

func TestTranslate_MissingMessage(t *testing.T) {
	t.Parallel()
	_, err := New().Translate(&generations.GenerateRequest{})
	require.ErrorIs(t, err, generations.ErrMissingArgument)
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	a, hits := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "checking",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})
	resp, err := a.Generate(context.Background(), &generations.GenerateRequest{
		Model:   "gpt-4o",
		Message: "find go",
		Tools:   generations.Tools{generations.FunctionTool("lookup", "", nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "checking", resp.Content)
	assert.Equal(t, generations.FinishToolUse, resp.Metadata.FinishReason)
	assert.Equal(t, generations.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, resp.Metadata.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, generations.ToolCall{Type: "function", Name: "lookup", ID: "call_1", Args: map[string]any{"q": "go"}}, resp.ToolCalls[0])
}

func TestGenerate_JSONModeParsesContent(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"response\":\"ok\"}"}}]}`)
	})
	resp, err := a.Generate(context.Background(), &generations.GenerateRequest{Message: "x", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"response":"ok"}`, resp.Content)
	assert.Equal(t, map[string]any{"response": "ok"}, resp.Structured)
	assert.Equal(t, generations.FinishStop, resp.Metadata.FinishReason)
}

func TestGenerate_MissingCredential(t *testing.T) {
	t.Parallel()
	a, hits := newTestAdapter(t, func(http.ResponseWriter, *http.Request) {})
	a.creds = credentials.New(credentials.WithLookupEnv(noEnv))
	_, err := a.Generate(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.ErrorIs(t, err, generations.ErrMissingCredential)
	assert.Equal(t, "openai: OPENAI_API_KEY not found in environment variables", err.Error())
	assert.Equal(t, int32(0), hits.Load())
}

func TestGenerate_OverrideCredential(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-override", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})
	_, err := a.Generate(context.Background(), &generations.GenerateRequest{
		Message:     "x",
		Credentials: generations.Credentials{APIKeyEnv: "sk-override"},
	})
	require.NoError(t, err)
}

func TestGenerate_UpstreamError(t *testing.T) {
	t.Parallel()
	a, hits := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	_, err := a.Generate(context.Background(), &generations.GenerateRequest{Message: "x"})
	var ue *generations.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, generations.ProviderOpenAI, ue.Provider)
	var apiErr *openai.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"f","arguments":"{\"a\""}}]}}]}`,
			`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":1}"}}]}}]}`,
			`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":2,"completion_tokens":3,"total_tokens":5}}`,
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	stream, err := a.GenerateStream(context.Background(), &generations.GenerateRequest{Message: "x", Stream: true})
	require.NoError(t, err)
	resp, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, generations.FinishToolUse, resp.Metadata.FinishReason)
	assert.Equal(t, int64(5), resp.Metadata.Usage.TotalTokens)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, map[string]any{"a": 1.0}, resp.ToolCalls[0].Args)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
}

func TestGenerateStream_EarlyBreak(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for range 3 {
			_, _ = io.WriteString(w, `data: {"id":"s","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"x"}}]}`+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	stream, err := a.GenerateStream(context.Background(), &generations.GenerateRequest{Message: "x"})
	require.NoError(t, err)
	n := 0
	for chunk, err := range stream.Iter() {
		require.NoError(t, err)
		_, ok := chunk.Raw.(openai.ChatCompletionChunk)
		assert.True(t, ok)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, DefaultEmbeddingModel, body["model"])
		inputs, _ := body["input"].([]any)
		w.Header().Set("Content-Type", "application/json")
		data := make([]map[string]any, 0, len(inputs))
		// Reverse order to check that vectors are placed by index.
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float64{float64(i), 0.5}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list", "data": data, "model": DefaultEmbeddingModel,
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	})
	ctx := context.Background()

	single, err := a.Embed(ctx, &generations.EmbedRequest{Input: generations.SingleInput("one")})
	require.NoError(t, err)
	v, ok := single.Single()
	require.True(t, ok)
	assert.Equal(t, generations.Vector{0, 0.5}, v)

	batch, err := a.Embed(ctx, &generations.EmbedRequest{Input: generations.BatchInput("a", "b", "c")})
	require.NoError(t, err)
	vs, ok := batch.Batch()
	require.True(t, ok)
	require.Len(t, vs, 3)
	assert.Equal(t, generations.Vector{2, 0.5}, vs[2])
}

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()
	a := New()
	assert.False(t, a.Supports(generations.OpTextToSpeech))
	assert.False(t, a.Supports(generations.OpGenerateWithImage))
	assert.True(t, a.Supports(generations.OpEmbedding))
	_, err := a.LLM(context.Background(), &generations.LLMRequest{Input: "x"})
	require.ErrorIs(t, err, generations.ErrUnsupportedOperation)
}
