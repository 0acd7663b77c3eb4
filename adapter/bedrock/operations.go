package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/generations"
	"github.com/skosovsky/generations/adapter"
)

// SpeechDefaults are the Polly settings used when a request leaves a field empty.
type SpeechDefaults struct {
	OutputPath   string
	Language     string
	OutputFormat string
	Voice        string
	Engine       string
	SampleRate   string
}

var defaultSpeech = SpeechDefaults{
	OutputPath:   "./uploads/audios",
	Language:     "en-US",
	OutputFormat: "mp3",
	Voice:        "Danielle",
	Engine:       "generative",
	SampleRate:   "22050",
}

func (d SpeechDefaults) withFallback(def SpeechDefaults) SpeechDefaults {
	pick := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}
	return SpeechDefaults{
		OutputPath:   pick(d.OutputPath, def.OutputPath),
		Language:     pick(d.Language, def.Language),
		OutputFormat: pick(d.OutputFormat, def.OutputFormat),
		Voice:        pick(d.Voice, def.Voice),
		Engine:       pick(d.Engine, def.Engine),
		SampleRate:   pick(d.SampleRate, def.SampleRate),
	}
}

// TextToSpeech implements adapter.Adapter with Polly SynthesizeSpeech. The audio is written to
// <output_path>/speech_<unix ms>.<format>; the directory is created when missing.
func (a *Adapter) TextToSpeech(ctx context.Context, req *generations.SpeechRequest) (*generations.SpeechResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg, err := a.awsConfig(req.Credentials, req.Region)
	if err != nil {
		return nil, err
	}
	s := SpeechDefaults{
		OutputPath:   req.OutputPath,
		Language:     req.Language,
		OutputFormat: req.OutputFormat,
		Voice:        req.Voice,
		Engine:       req.Engine,
	}.withFallback(a.speech)
	out, err := a.newSpeech(cfg).SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: pollytypes.OutputFormat(s.OutputFormat),
		Text:         aws.String(req.Text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.Voice),
		LanguageCode: pollytypes.LanguageCode(s.Language),
		SampleRate:   aws.String(s.SampleRate),
		Engine:       pollytypes.Engine(s.Engine),
	})
	if err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpTextToSpeech, err)
	}
	if out.AudioStream == nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpTextToSpeech, adapter.ErrEmptyResponse)
	}
	defer func() { _ = out.AudioStream.Close() }()
	if err := os.MkdirAll(s.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("bedrock: create speech directory: %w", err)
	}
	path := filepath.Join(s.OutputPath, fmt.Sprintf("speech_%d.%s", time.Now().UnixMilli(), s.OutputFormat))
	n, err := writeFile(path, out.AudioStream)
	if err != nil {
		return nil, err
	}
	return &generations.SpeechResult{Path: path, Format: s.OutputFormat, Bytes: n}, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("bedrock: create speech file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("bedrock: write speech file: %w", err)
	}
	return n, nil
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements adapter.Adapter with the Titan text embedding model. Titan embeds one text per
// call, so batch input runs concurrently under the adapter limit; vectors keep input order.
func (a *Adapter) Embed(ctx context.Context, req *generations.EmbedRequest) (generations.Embedding, error) {
	if err := req.Validate(); err != nil {
		return generations.Embedding{}, err
	}
	cfg, err := a.awsConfig(req.Credentials, req.Region)
	if err != nil {
		return generations.Embedding{}, err
	}
	rt := a.newRuntime(cfg)
	model := req.Model
	if model == "" {
		model = a.embedModel
	}
	alias, _ := ResolveModel(model)
	texts := req.Input.Texts()
	vectors := make([]generations.Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.embedLimit)
	for i, text := range texts {
		g.Go(func() error {
			v, err := embedOne(gctx, rt, alias.Model, text)
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderBedrock, generations.OpEmbedding, err)
	}
	emb, err := generations.NewEmbedding(req.Input, vectors)
	if err != nil {
		return generations.Embedding{}, generations.Upstream(generations.ProviderBedrock, generations.OpEmbedding, err)
	}
	return emb, nil
}

func embedOne(ctx context.Context, rt Runtime, model, text string) (generations.Vector, error) {
	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, err
	}
	out, err := rt.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	var res titanResponse
	if err := json.Unmarshal(out.Body, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrInvalidResponse, err)
	}
	if len(res.Embedding) == 0 {
		return nil, adapter.ErrEmptyResponse
	}
	return generations.Vector(res.Embedding), nil
}

type completionRequest struct {
	Prompt            string  `json:"prompt"`
	MaxTokensToSample int64   `json:"max_tokens_to_sample"`
	Temperature       float64 `json:"temperature"`
}

type completionResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
}

// LLMPrompt renders the text-completion prompt for input.
func LLMPrompt(input string) string {
	return "Human: " + input + " \nAssistant:"
}

// LLM implements adapter.Adapter with a Claude text-completions body.
func (a *Adapter) LLM(ctx context.Context, req *generations.LLMRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg, err := a.awsConfig(req.Credentials, req.Region)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = DefaultLLMModel
	}
	alias, _ := ResolveModel(model)
	body, err := json.Marshal(completionRequest{
		Prompt:            LLMPrompt(req.Input),
		MaxTokensToSample: DefaultMaxTokens,
		Temperature:       DefaultTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrMalformedArgs, err)
	}
	out, err := a.newRuntime(cfg).InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(alias.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpLLM, err)
	}
	var res completionResponse
	if err := json.Unmarshal(out.Body, &res); err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpLLM,
			fmt.Errorf("%w: %w", adapter.ErrInvalidResponse, err))
	}
	return generations.FormatToolResponse(generations.RawResult{
		"content":     strings.TrimSpace(res.Completion),
		"stop_reason": res.StopReason,
	}), nil
}

// GenerateWithImage implements adapter.Adapter through Converse. The image comes from a local path
// or an https URL and is sent as bytes.
func (a *Adapter) GenerateWithImage(ctx context.Context, req *generations.ImageRequest) (*generations.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg, err := a.awsConfig(req.Credentials, req.Region)
	if err != nil {
		return nil, err
	}
	data, contentType, err := a.images.Load(ctx, req.ImagePath)
	if err != nil {
		return nil, &generations.ValidationError{Field: "imagePath", Err: err}
	}
	in := a.ImageInput(req, data, contentType)
	out, err := a.newRuntime(cfg).Converse(ctx, in)
	if err != nil {
		return nil, generations.Upstream(generations.ProviderBedrock, generations.OpGenerateWithImage, err)
	}
	return ParseConverse(out, false)
}

// ImageInput builds the Converse call of an image request: system block, history, then a user turn
// with the message text and the image.
func (a *Adapter) ImageInput(req *generations.ImageRequest, image []byte, contentType string) *bedrockruntime.ConverseInput {
	model := req.Model
	if model == "" {
		model = DefaultImageModel
	}
	system := req.System
	if system == "" {
		system = DefaultImageSystem
	}
	alias, _ := ResolveModel(model)
	temp := DefaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	msgs := converseMessages(mergeTurns(history(req.Prev)))
	var content []types.ContentBlock
	if req.Message != "" {
		content = append(content, &types.ContentBlockMemberText{Value: req.Message})
	}
	content = append(content, &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: imageFormat(contentType),
		Source: &types.ImageSourceMemberBytes{Value: image},
	}})
	if n := len(msgs); n > 0 && msgs[n-1].Role == types.ConversationRoleUser {
		msgs[n-1].Content = append(msgs[n-1].Content, content...)
	} else {
		msgs = append(msgs, types.Message{Role: types.ConversationRoleUser, Content: content})
	}
	return &bedrockruntime.ConverseInput{
		ModelId:         aws.String(alias.Model),
		System:          []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}},
		Messages:        msgs,
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(float32(temp))},
	}
}

// imageFormat maps a content type onto a Converse image format. JPEG is the default.
func imageFormat(contentType string) types.ImageFormat {
	switch contentType {
	case "image/png":
		return types.ImageFormatPng
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatJpeg
	}
}
