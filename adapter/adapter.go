package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skosovsky/generations"
)

// Adapter is the uniform capability set of one provider. Unsupported operations are reported by
// Supports and fail with *generations.UnsupportedError before any network call.
type Adapter interface {
	// Provider returns the provider this adapter serves.
	Provider() generations.Provider
	// Supports reports whether op is implemented. The answer is static.
	Supports(op generations.Operation) bool
	// Generate runs a buffered chat call and returns the canonical envelope.
	Generate(ctx context.Context, req *generations.GenerateRequest) (*generations.Response, error)
	// GenerateStream runs a streaming chat call. Chunk.Raw holds the native chunk type documented by the adapter.
	GenerateStream(ctx context.Context, req *generations.GenerateRequest) (*generations.Stream, error)
	// GenerateWithImage attaches an image to the user turn.
	GenerateWithImage(ctx context.Context, req *generations.ImageRequest) (*generations.Response, error)
	// Embed returns one vector per input text; the variant mirrors the input cardinality.
	Embed(ctx context.Context, req *generations.EmbedRequest) (generations.Embedding, error)
	// LLM runs a raw text completion.
	LLM(ctx context.Context, req *generations.LLMRequest) (*generations.Response, error)
	// TextToSpeech synthesizes audio and returns after the file is written.
	TextToSpeech(ctx context.Context, req *generations.SpeechRequest) (*generations.SpeechResult, error)
}

// DefaultSystemPrompt is the system prompt used by the openai and google adapters when a request has none.
const DefaultSystemPrompt = "You are a helpful assistant. Never explain what you do, just provide the requested response."

// Sentinel errors for adapter implementations. Callers should use errors.Is.
var (
	ErrInvalidResponse = errors.New("adapter: raw response has unexpected shape")
	ErrEmptyResponse   = errors.New("adapter: response contains no content")
	ErrMalformedArgs   = errors.New("adapter: tool parameters or schema JSON is malformed")
)

// Unsupported implements every operation as a static failure for Name. Adapters embed it and
// override the operations they implement.
type Unsupported struct {
	Name generations.Provider
}

func (u Unsupported) fail(op generations.Operation) error {
	return &generations.UnsupportedError{Provider: u.Name, Operation: op}
}

// GenerateWithImage fails with UnsupportedError.
func (u Unsupported) GenerateWithImage(context.Context, *generations.ImageRequest) (*generations.Response, error) {
	return nil, u.fail(generations.OpGenerateWithImage)
}

// Embed fails with UnsupportedError.
func (u Unsupported) Embed(context.Context, *generations.EmbedRequest) (generations.Embedding, error) {
	return generations.Embedding{}, u.fail(generations.OpEmbedding)
}

// LLM fails with UnsupportedError.
func (u Unsupported) LLM(context.Context, *generations.LLMRequest) (*generations.Response, error) {
	return nil, u.fail(generations.OpLLM)
}

// TextToSpeech fails with UnsupportedError.
func (u Unsupported) TextToSpeech(context.Context, *generations.SpeechRequest) (*generations.SpeechResult, error) {
	return nil, u.fail(generations.OpTextToSpeech)
}

// ToRawResult converts a native response value into a RawResult through its JSON encoding.
func ToRawResult(v any) (generations.RawResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return DecodeRawResult(data)
}

// DecodeRawResult decodes a JSON object into a RawResult.
func DecodeRawResult(data []byte) (generations.RawResult, error) {
	var raw generations.RawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if raw == nil {
		return nil, ErrInvalidResponse
	}
	return raw, nil
}

// StructuredSchema returns the JSON Schema of s for providers with native structured output.
// A nil schema yields the default {response: string} object. For object schemas without an explicit
// additionalProperties, the flag is set to the negation of strict.
func StructuredSchema(s *generations.Schema) (doc map[string]any, name string, strict bool) {
	if s == nil || s.Parameters == nil {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"response": map[string]any{"type": "string"}},
			"required":             []any{"response"},
			"additionalProperties": false,
		}, "json_response", true
	}
	doc = s.Document()
	strict = s.IsStrict()
	if doc["type"] == "object" {
		if _, ok := doc["additionalProperties"]; !ok {
			doc["additionalProperties"] = !strict
		}
	}
	name = s.Name
	if name == "" {
		name = "structured_output"
	}
	return doc, name, strict
}
