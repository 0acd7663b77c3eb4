package bedrock

import (
	"maps"
	"slices"
	"strings"
)

// AnthropicVersion is the Messages API version sent in native Claude request bodies.
const AnthropicVersion = "bedrock-2023-05-31"

// Alias is the resolved form of a model name.
type Alias struct {
	Model            string // model id, inference profile id or model ARN
	AnthropicVersion string // set for Claude models that take native bodies
}

const foundationARN = "arn:aws:bedrock:us-east-1::foundation-model/"

// aliases maps the accepted model names to Bedrock model ids. The table is read-only.
var aliases = map[string]Alias{
	"deepseek.r1-v1:0": {Model: "us.deepseek.r1-v1:0"},

	"anthropic.claude-sonnet-4":                 {Model: "us.anthropic.claude-sonnet-4-20250514-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-sonnet-3-7":               {Model: foundationARN + "anthropic.claude-3-7-sonnet-20250219-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-3-7-sonnet-20250219-v1:0": {Model: foundationARN + "anthropic.claude-3-7-sonnet-20250219-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-sonnet-3-5-2":             {Model: "anthropic.claude-3-5-sonnet-20241022-v2:0"},
	"anthropic.claude-sonnet-3-5":               {Model: "anthropic.claude-3-5-sonnet-20240620-v1:0"},
	"anthropic.claude-3-5-sonnet-20240620-v1:0": {Model: "anthropic.claude-3-5-sonnet-20240620-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-sonnet-3":                 {Model: "anthropic.claude-3-sonnet-20240229-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-3-sonnet-20240229-v1:0":   {Model: "anthropic.claude-3-sonnet-20240229-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-3-haiku":                  {Model: "anthropic.claude-3-haiku-20240307-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-3-5-haiku":                {Model: "anthropic.claude-3-5-haiku-20241022", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-3-5-haiku-serverless":     {Model: "anthropic.claude-3-haiku-20240307-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.haiku":                           {Model: "anthropic.claude-3-haiku-20240307-v1:0", AnthropicVersion: AnthropicVersion},
	"anthropic.claude-instant":                  {Model: "anthropic.claude-instant-v1"},
	"anthropic.claude-instant-v1":               {Model: "anthropic.claude-instant-v1"},

	"amazon.nova-premier-v1:0": {Model: foundationARN + "amazon.nova-premier-v1:0"},
	"amazon.nova-pro-v1:0":     {Model: foundationARN + "amazon.nova-pro-v1:0"},
	"amazon.nova-lite-v1:0":    {Model: foundationARN + "amazon.nova-lite-v1:0"},
	"amazon.nova-micro-v1:0":   {Model: foundationARN + "amazon.nova-micro-v1:0"},
	"amazon.nova-canvas-v1:0":  {Model: "amazon.nova-canvas-v1:0"},
	"amazon.nova-reel-v1:0":    {Model: "amazon.nova-reel-v1:0"},
	"amazon.nova-reel-v1:1":    {Model: "amazon.nova-reel-v1:1"},

	"amazon.titan-text-premier-v1:0":    {Model: "amazon.titan-text-premier-v1:0"},
	"amazon.titan-text-express-v1":      {Model: "amazon.titan-text-express-v1"},
	"amazon.titan-text-lite-v1":         {Model: "amazon.titan-text-lite-v1"},
	"amazon.titan-embed-text-v1":        {Model: "amazon.titan-embed-text-v1"},
	"amazon.titan-embed-text-v2:0":      {Model: "amazon.titan-embed-text-v2:0"},
	"amazon.titan-embed-image-v1":       {Model: "amazon.titan-embed-image-v1"},
	"amazon.titan-image-generator-v1":   {Model: "amazon.titan-image-generator-v1"},
	"amazon.titan-image-generator-v2:0": {Model: "amazon.titan-image-generator-v2:0"},

	"meta.llama3-8b":                {Model: "meta.llama3-8b-instruct-v1:0"},
	"meta.llama3-8b-instruct-v1:0":  {Model: "meta.llama3-8b-instruct-v1:0"},
	"meta.llama3-70b":               {Model: "meta.llama3-70b-instruct-v1:0"},
	"meta.llama3-70b-instruct-v1:0": {Model: "meta.llama3-70b-instruct-v1:0"},

	"ai21.jamba-1-5-large-v1:0": {Model: "ai21.jamba-1-5-large-v1:0"},
	"ai21.jamba-1-5-mini-v1:0":  {Model: "ai21.jamba-1-5-mini-v1:0"},
	"ai21.jamba-instruct-v1:0":  {Model: "ai21.jamba-instruct-v1:0"},

	"stability.stable-diffusion-xl-v1":   {Model: "stability.stable-diffusion-xl-v1"},
	"stability.stable-diffusion-xl-v1:0": {Model: "stability.stable-diffusion-xl-v1:0"},
}

// ResolveModel maps name through the alias table. A model ARN is matched by its trailing
// foundation-model segment, first as an alias and then against the aliased ids.
// Unknown names pass through unchanged with known=false.
func ResolveModel(name string) (alias Alias, known bool) {
	if a, ok := aliases[name]; ok {
		return a, true
	}
	if strings.HasPrefix(name, "arn:aws:bedrock:") {
		id := name[strings.LastIndex(name, "/")+1:]
		if a, ok := aliases[id]; ok {
			return a, true
		}
		for _, key := range slices.Sorted(maps.Keys(aliases)) {
			if a := aliases[key]; a.Model == id {
				return a, true
			}
		}
	}
	return Alias{Model: name}, false
}

// profileMarkers are alias fragments of models served through inference profiles.
var profileMarkers = []string{"sonnet-4", "sonnet-3-7", "opus-4", "deepseek", "nova-"}

// RequiresInferenceProfile reports whether name must be invoked through an inference profile or ARN.
func RequiresInferenceProfile(name string) bool {
	a, _ := ResolveModel(name)
	if strings.HasPrefix(a.Model, "us.") || strings.HasPrefix(a.Model, "arn:aws:bedrock:") {
		return true
	}
	for _, m := range profileMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// IsClaude reports whether name designates an Anthropic model.
func IsClaude(name string) bool {
	return strings.Contains(name, "anthropic") || strings.Contains(name, "claude")
}
