package generations

import (
	"fmt"
	"strings"
)

// Provider names a supported backend. The set is closed.
type Provider string

// Supported providers.
const (
	ProviderBedrock Provider = "bedrock"
	ProviderOpenAI  Provider = "openai"
	ProviderGoogle  Provider = "google"
)

// Providers lists the supported providers in their canonical order.
func Providers() []Provider {
	return []Provider{ProviderBedrock, ProviderOpenAI, ProviderGoogle}
}

// ParseProvider validates name against the supported set.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(name); p {
	case ProviderBedrock, ProviderOpenAI, ProviderGoogle:
		return p, nil
	default:
		names := make([]string, 0, 3)
		for _, v := range Providers() {
			names = append(names, string(v))
		}
		return "", &ConfigurationError{
			Provider: p,
			Detail:   fmt.Sprintf("Unsupported provider: %s. Valid providers are: %s", name, strings.Join(names, ", ")),
			Err:      ErrUnsupportedProvider,
		}
	}
}

// Operation names one entry of the provider operation surface.
type Operation string

// Operations of the provider surface.
const (
	OpGenerate          Operation = "generate"
	OpGenerateWithImage Operation = "generateWithImage"
	OpGenerateWithTools Operation = "generateWithTools"
	OpEmbedding         Operation = "embedding"
	OpLLM               Operation = "llm"
	OpTextToSpeech      Operation = "textToSpeech"
)

// Operations lists every operation in a stable order.
func Operations() []Operation {
	return []Operation{OpGenerate, OpGenerateWithImage, OpGenerateWithTools, OpEmbedding, OpLLM, OpTextToSpeech}
}
