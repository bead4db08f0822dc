package llm

import (
	"time"

	"github.com/kaleow/omnichat/internal/profile"
)

// NewAdapters builds the adapter set from profile credentials. A provider
// whose key is absent gets an unavailable stub instead of a live adapter, so
// the server always starts and missing configuration surfaces in-channel.
func NewAdapters(p *profile.Profile) map[Provider]Adapter {
	timeout := time.Duration(p.LLMTimeout) * time.Second

	adapters := map[Provider]Adapter{
		ProviderOpenAI:    NewUnavailableAdapter(ProviderOpenAI, profile.EnvOpenAIAPIKey),
		ProviderAnthropic: NewUnavailableAdapter(ProviderAnthropic, profile.EnvAnthropicAPIKey),
		ProviderGoogle:    NewUnavailableAdapter(ProviderGoogle, profile.EnvGoogleAPIKey),
		ProviderGroq:      NewUnavailableAdapter(ProviderGroq, profile.EnvGroqAPIKey),
	}

	if p.OpenAIAPIKey != "" {
		adapters[ProviderOpenAI] = NewOpenAIAdapter(p.OpenAIAPIKey, p.OpenAIBaseURL, timeout)
	}
	if p.AnthropicAPIKey != "" {
		adapters[ProviderAnthropic] = NewAnthropicAdapter(p.AnthropicAPIKey, p.AnthropicBaseURL, timeout)
	}
	if p.GoogleAPIKey != "" {
		adapters[ProviderGoogle] = NewGoogleAdapter(p.GoogleAPIKey, p.GoogleBaseURL, timeout)
	}
	if p.GroqAPIKey != "" {
		adapters[ProviderGroq] = NewGroqAdapter(p.GroqAPIKey, p.GroqBaseURL, timeout)
	}

	return adapters
}
