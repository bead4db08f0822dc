// Package llm contains the normalized chat-completion model: one request and
// result shape shared by every provider adapter, the model registry that maps
// model ids to providers, and the dispatcher that routes requests.
package llm

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// GenerationRequest is the normalized request handed to an adapter.
// Client-only fields (timestamps, ids) must already be stripped; only
// role and content cross the provider boundary.
type GenerationRequest struct {
	Messages    []Message
	Model       string
	Temperature float32 // clamped to [0, 2]
	MaxTokens   int     // clamped to [256, 4096]
	Stream      bool
}

// ResultKind classifies a generation result.
type ResultKind string

const (
	// ResultOK carries provider-generated content.
	ResultOK ResultKind = "ok"
	// ResultConfigMissing means the provider credential is absent; Content
	// names the environment variable to set.
	ResultConfigMissing ResultKind = "config_missing"
	// ResultProviderError wraps a failed provider call. Content carries the
	// provider-labeled, user-facing message.
	ResultProviderError ResultKind = "provider_error"
)

// Result is the normalized outcome of a generation request. Content is always
// populated, even for failures; the conversation transcript is the single
// channel of truth for what happened.
type Result struct {
	Content string
	Kind    ResultKind
}

// OK reports whether the result carries real model output.
func (r Result) OK() bool {
	return r.Kind == ResultOK
}

const (
	minMaxTokens = 256
	maxMaxTokens = 4096
)

// Normalize clamps generation parameters to their allowed ranges and fills in
// defaults for zero values.
func (r *GenerationRequest) Normalize() {
	if r.Temperature < 0 {
		r.Temperature = 0
	}
	if r.Temperature > 2 {
		r.Temperature = 2
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 2048
	}
	if r.MaxTokens < minMaxTokens {
		r.MaxTokens = minMaxTokens
	}
	if r.MaxTokens > maxMaxTokens {
		r.MaxTokens = maxMaxTokens
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
