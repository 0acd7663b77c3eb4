package generations

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Credentials is a per-call credential override keyed by environment variable name
// (e.g. OPENAI_API_KEY). It arrives as the "env" field of an argument bag.
type Credentials map[string]string

// GenerateRequest is the argument bag of generate and generateWithTools.
// Field names follow the wire argument bag.
type GenerateRequest struct {
	Model          string      `json:"model,omitempty"`
	System         string      `json:"system,omitempty"` // empty means the provider default
	Message        string      `json:"message"`
	Prev           []any       `json:"prev,omitempty"` // history records, see NormalizeMessages
	Temperature    *float64    `json:"temperature,omitempty"`
	MaxTokens      *int64      `json:"max_tokens,omitempty"`
	JSONMode       bool        `json:"json_mode,omitempty"`
	ResponseSchema *Schema     `json:"response_schema,omitempty"`
	Region         string      `json:"region,omitempty"`
	Stream         bool        `json:"stream,omitempty"`
	Tools          Tools       `json:"tools,omitempty"`
	Credentials    Credentials `json:"env,omitempty"`
}

// Validate checks the arguments required before any network call.
func (r *GenerateRequest) Validate() error {
	if r == nil {
		return MissingArgument("request")
	}
	if r.Message == "" {
		return MissingArgument("message")
	}
	return nil
}

// Conversation returns [system, ...prev, user] normalized. system falls back to defaultSystem.
func (r *GenerateRequest) Conversation(defaultSystem string) []Message {
	system := r.System
	if system == "" {
		system = defaultSystem
	}
	records := make([]any, 0, len(r.Prev)+2)
	records = append(records, Message{Role: RoleSystem, Content: system})
	records = append(records, r.Prev...)
	records = append(records, Message{Role: RoleUser, Content: r.Message})
	return NormalizeMessages(records)
}

// History returns the normalized prev records only.
func (r *GenerateRequest) History() []Message {
	return NormalizeMessages(r.Prev)
}

// TemperatureOr returns the requested temperature or def.
func (r *GenerateRequest) TemperatureOr(def float64) float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return def
}

// MaxTokensOr returns the requested max tokens or def. Zero counts as unset.
func (r *GenerateRequest) MaxTokensOr(def int64) int64 {
	if r.MaxTokens != nil && *r.MaxTokens > 0 {
		return *r.MaxTokens
	}
	return def
}

// DecodeGenerateRequest builds a request from a generic document, such as the output of Integrate.
func DecodeGenerateRequest(doc map[string]any) (*GenerateRequest, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	var req GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return &req, nil
}

// ImageRequest is the argument bag of generateWithImage.
type ImageRequest struct {
	Model       string      `json:"model,omitempty"`
	System      string      `json:"system,omitempty"`
	Message     string      `json:"message"`
	ImagePath   string      `json:"imagePath"` // local path or https URL
	Prev        []any       `json:"prev,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Region      string      `json:"region,omitempty"`
	Credentials Credentials `json:"env,omitempty"`
}

// Validate checks the arguments required before any network call.
func (r *ImageRequest) Validate() error {
	if r == nil {
		return MissingArgument("request")
	}
	if r.ImagePath == "" {
		return MissingArgument("imagePath")
	}
	return nil
}

// EmbedRequest is the argument bag of embedding.
type EmbedRequest struct {
	Model       string      `json:"model,omitempty"`
	Input       EmbedInput  `json:"message"`
	Region      string      `json:"region,omitempty"`
	Credentials Credentials `json:"env,omitempty"`
}

// Validate checks the arguments required before any network call.
func (r *EmbedRequest) Validate() error {
	if r == nil {
		return MissingArgument("request")
	}
	// A batch may carry blank entries, but not only blank ones.
	if !slices.ContainsFunc(r.Input.Texts(), func(s string) bool { return s != "" }) {
		return MissingArgument("message")
	}
	return nil
}

// LLMRequest is the argument bag of llm (raw text completion).
type LLMRequest struct {
	Model       string      `json:"model,omitempty"`
	System      string      `json:"system,omitempty"`
	Input       string      `json:"input"`
	Region      string      `json:"region,omitempty"`
	Credentials Credentials `json:"env,omitempty"`
}

// Validate checks the arguments required before any network call.
func (r *LLMRequest) Validate() error {
	if r == nil {
		return MissingArgument("request")
	}
	if r.Input == "" {
		return MissingArgument("input")
	}
	return nil
}

// SpeechRequest is the argument bag of textToSpeech. Empty fields take provider defaults.
type SpeechRequest struct {
	Text         string      `json:"text"`
	OutputPath   string      `json:"output_path,omitempty"`
	Language     string      `json:"language,omitempty"`
	OutputFormat string      `json:"output_format,omitempty"`
	Voice        string      `json:"voice,omitempty"`
	Engine       string      `json:"engine,omitempty"`
	Region       string      `json:"region,omitempty"`
	Credentials  Credentials `json:"env,omitempty"`
}

// Validate checks the arguments required before any network call.
func (r *SpeechRequest) Validate() error {
	if r == nil {
		return MissingArgument("request")
	}
	if r.Text == "" {
		return MissingArgument("text")
	}
	return nil
}

// SpeechResult reports a completed audio write.
type SpeechResult struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Bytes  int64  `json:"bytes"`
}
