package generations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRequest_Validate(t *testing.T) {
	t.Parallel()
	var nilReq *GenerateRequest
	require.ErrorIs(t, nilReq.Validate(), ErrMissingArgument)
	require.ErrorIs(t, (&GenerateRequest{}).Validate(), ErrMissingArgument)
	require.NoError(t, (&GenerateRequest{Message: "hi"}).Validate())
}

func TestGenerateRequest_Conversation(t *testing.T) {
	t.Parallel()
	req := &GenerateRequest{
		Message: "next",
		Prev: []any{
			map[string]any{"role": "human", "content": "first"},
			map[string]any{"role": "ai", "content": "reply"},
			map[string]any{"role": "unknown", "content": "skip"},
		},
	}
	got := req.Conversation("default system")
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "default system"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "next"},
	}, got)

	req.System = "custom"
	assert.Equal(t, "custom", req.Conversation("default system")[0].Content)
	assert.Len(t, req.History(), 2)
}

func TestGenerateRequest_Defaults(t *testing.T) {
	t.Parallel()
	req := &GenerateRequest{}
	assert.InDelta(t, 0.7, req.TemperatureOr(0.7), 1e-9)
	assert.Equal(t, int64(4096), req.MaxTokensOr(4096))

	temp, zero, limit := 0.0, int64(0), int64(100)
	req.Temperature = &temp
	req.MaxTokens = &zero
	assert.InDelta(t, 0.0, req.TemperatureOr(0.7), 1e-9)
	assert.Equal(t, int64(4096), req.MaxTokensOr(4096))
	req.MaxTokens = &limit
	assert.Equal(t, int64(100), req.MaxTokensOr(4096))
}

func TestDecodeGenerateRequest(t *testing.T) {
	t.Parallel()
	doc := map[string]any{
		"model":      "gpt-4o",
		"message":    "hello",
		"json_mode":  true,
		"max_tokens": 256.0,
		"tools": []any{
			map[string]any{"type": "function", "name": "lookup", "parameters": map[string]any{"type": "object"}},
			map[string]any{"google_search": map[string]any{}},
		},
		"response_schema": map[string]any{
			"name":       "answer",
			"strict":     false,
			"parameters": map[string]any{"type": "object"},
		},
		"env": map[string]any{"OPENAI_API_KEY": "sk-test"},
	}
	req, err := DecodeGenerateRequest(doc)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.True(t, req.JSONMode)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, int64(256), *req.MaxTokens)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, ToolFunction, req.Tools[0].Kind)
	assert.True(t, req.Tools.Has(ToolGoogleSearch))
	require.NotNil(t, req.ResponseSchema)
	assert.Equal(t, "answer", req.ResponseSchema.Name)
	assert.False(t, req.ResponseSchema.IsStrict())
	assert.Equal(t, "sk-test", req.Credentials["OPENAI_API_KEY"])
}

func TestDecodeGenerateRequest_Malformed(t *testing.T) {
	t.Parallel()
	_, err := DecodeGenerateRequest(map[string]any{"message": 12})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOtherRequests_Validate(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, (&ImageRequest{Message: "x"}).Validate(), ErrMissingArgument)
	require.NoError(t, (&ImageRequest{ImagePath: "a.jpg"}).Validate())
	require.ErrorIs(t, (&EmbedRequest{}).Validate(), ErrMissingArgument)
	require.NoError(t, (&EmbedRequest{Input: SingleInput("x")}).Validate())
	require.ErrorIs(t, (&LLMRequest{}).Validate(), ErrMissingArgument)
	require.NoError(t, (&LLMRequest{Input: "x"}).Validate())
	require.ErrorIs(t, (&SpeechRequest{}).Validate(), ErrMissingArgument)
	require.NoError(t, (&SpeechRequest{Text: "x"}).Validate())
}

func TestEmbedRequest_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"single", `{"message":"hello"}`, false},
		{"batch", `{"message":["a","b"]}`, false},
		{"batch with blank", `{"message":["a",""]}`, false},
		{"missing", `{}`, true},
		{"empty string", `{"message":""}`, true},
		{"empty batch", `{"message":[]}`, true},
		{"all blank batch", `{"message":["",""]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var req EmbedRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			err := req.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingArgument)
				return
			}
			require.NoError(t, err)
		})
	}
}
