package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// openAICompatAdapter serves every provider speaking the OpenAI chat
// completion protocol. OpenAI itself and Groq both route through here with
// different base URLs.
type openAICompatAdapter struct {
	client   *openai.Client
	provider Provider
	timeout  time.Duration
}

// NewOpenAIAdapter creates the adapter for the OpenAI API.
func NewOpenAIAdapter(apiKey, baseURL string, timeout time.Duration) Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = newHTTPClient(0)
	return &openAICompatAdapter{
		client:   openai.NewClientWithConfig(cfg),
		provider: ProviderOpenAI,
		timeout:  timeout,
	}
}

// NewGroqAdapter creates the adapter for Groq's OpenAI-compatible API.
func NewGroqAdapter(apiKey, baseURL string, timeout time.Duration) Adapter {
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = newHTTPClient(0)
	return &openAICompatAdapter{
		client:   openai.NewClientWithConfig(cfg),
		provider: ProviderGroq,
		timeout:  timeout,
	}
}

func (a *openAICompatAdapter) Provider() Provider { return a.provider }

func (a *openAICompatAdapter) Available() bool { return true }

func (a *openAICompatAdapter) Complete(ctx context.Context, req GenerationRequest) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req.Normalize()

	slog.Debug("llm: chat request",
		"provider", a.provider,
		"model", req.Model,
		"messages", len(req.Messages),
		"max_tokens", req.MaxTokens,
	)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    convertMessages(req.Messages),
	})
	if err != nil {
		slog.Error("llm: chat request failed", "provider", a.provider, "error", err)
		return failureResult(a.provider, err)
	}
	if len(resp.Choices) == 0 {
		return failureResult(a.provider, errors.New("empty response"))
	}
	return Result{Kind: ResultOK, Content: resp.Choices[0].Message.Content}
}

func (a *openAICompatAdapter) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		req.Normalize()

		stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Messages:    convertMessages(req.Messages),
		})
		if err != nil {
			slog.Error("llm: stream create failed", "provider", a.provider, "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			}
			return
		}
		defer func() { _ = stream.Close() }()

		chunks := 0
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					slog.Debug("llm: stream completed", "provider", a.provider, "chunks", chunks)
					return
				}
				slog.Error("llm: stream recv failed", "provider", a.provider, "chunks", chunks, "error", err)
				select {
				case errChan <- err:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			chunks++
			select {
			case contentChan <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return contentChan, errChan
}

// convertMessages maps normalized messages onto the OpenAI wire shape. Only
// role and content are carried; unknown roles collapse to user.
func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
