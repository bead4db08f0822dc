package llm

import "strings"

// Provider identifies a hosted model API vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderGroq      Provider = "groq"
)

// ModelDescriptor describes one entry of the static model catalog.
type ModelDescriptor struct {
	ID          string
	DisplayName string
	Provider    Provider
	Description string
}

// catalog is the static model catalog. The first entry is the default
// descriptor that Resolve falls back to, so stale persisted model ids from
// removed catalog entries never break rendering.
var catalog = []ModelDescriptor{
	{ID: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", Provider: ProviderOpenAI, Description: "Fast, inexpensive general-purpose model"},
	{ID: "gpt-4", DisplayName: "GPT-4", Provider: ProviderOpenAI, Description: "Strong reasoning, slower and pricier"},
	{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", Provider: ProviderOpenAI, Description: "GPT-4 quality with larger context"},
	{ID: "claude-3-5-sonnet", DisplayName: "Claude 3.5 Sonnet", Provider: ProviderAnthropic, Description: "Balanced Anthropic model"},
	{ID: "claude-3-opus", DisplayName: "Claude 3 Opus", Provider: ProviderAnthropic, Description: "Highest-capability Anthropic model"},
	{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", Provider: ProviderGoogle, Description: "Google long-context model"},
	{ID: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", Provider: ProviderGoogle, Description: "Low-latency Google model"},
	{ID: "llama-3.1-70b-versatile", DisplayName: "Llama 3.1 70B", Provider: ProviderGroq, Description: "Open-weights model served by Groq"},
	{ID: "mixtral-8x7b-32768", DisplayName: "Mixtral 8x7B", Provider: ProviderGroq, Description: "Mixture-of-experts model served by Groq"},
}

// Registry resolves model identifiers to descriptors and providers.
type Registry struct {
	models []ModelDescriptor
	byID   map[string]ModelDescriptor
}

// NewRegistry creates a registry over the built-in catalog.
func NewRegistry() *Registry {
	return newRegistry(catalog)
}

func newRegistry(models []ModelDescriptor) *Registry {
	byID := make(map[string]ModelDescriptor, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	return &Registry{models: models, byID: byID}
}

// Models returns the full catalog.
func (r *Registry) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Default returns the default descriptor.
func (r *Registry) Default() ModelDescriptor {
	return r.models[0]
}

// Resolve looks up a model id. Unknown ids resolve to the default descriptor
// rather than failing.
func (r *Registry) Resolve(modelID string) ModelDescriptor {
	if m, ok := r.byID[modelID]; ok {
		return m
	}
	return r.Default()
}

// ProviderFor classifies a model id by substring rule. Precedence matters:
// the "gpt" prefix is checked first, then "claude", "gemini", and finally
// "llama"/"mixtral". Ids matching no rule route to the default provider.
func (r *Registry) ProviderFor(modelID string) Provider {
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "gpt"):
		return ProviderOpenAI
	case strings.Contains(id, "claude"):
		return ProviderAnthropic
	case strings.Contains(id, "gemini"):
		return ProviderGoogle
	case strings.Contains(id, "llama"), strings.Contains(id, "mixtral"):
		return ProviderGroq
	default:
		return r.Default().Provider
	}
}
