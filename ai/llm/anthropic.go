package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
)

// anthropicAdapter calls the Anthropic messages API over plain HTTP/JSON.
// Anthropic does not speak the OpenAI protocol: the system message travels in
// a top-level field, and the message array allows only user/assistant roles.
type anthropicAdapter struct {
	client  *http.Client
	apiKey  string
	baseURL string
	timeout time.Duration
}

// NewAnthropicAdapter creates the adapter for the Anthropic API.
func NewAnthropicAdapter(apiKey, baseURL string, timeout time.Duration) Adapter {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &anthropicAdapter{
		client:  newHTTPClient(0),
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

func (a *anthropicAdapter) Provider() Provider { return ProviderAnthropic }

func (a *anthropicAdapter) Available() bool { return true }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// shapeAnthropicMessages extracts system-role messages into the top-level
// system prompt and coerces the rest to the user/assistant pair the API
// accepts: assistant stays assistant, everything else becomes user.
func shapeAnthropicMessages(messages []Message) (string, []anthropicMessage) {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Content})
	}
	return strings.Join(system, "\n"), out
}

func (a *anthropicAdapter) buildRequest(ctx context.Context, req GenerationRequest, stream bool) (*http.Request, error) {
	req.Normalize()
	system, messages := shapeAnthropicMessages(req.Messages)
	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    messages,
		Stream:      stream,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	return httpReq, nil
}

func (a *anthropicAdapter) Complete(ctx context.Context, req GenerationRequest) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return failureResult(ProviderAnthropic, err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		slog.Error("llm: anthropic request failed", "error", err)
		return failureResult(ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return failureResult(ProviderAnthropic, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return failureResult(ProviderAnthropic, fmt.Errorf("%s", msg))
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Result{Kind: ResultOK, Content: sb.String()}
}

// anthropicStreamEvent is the subset of SSE payloads the stream reader needs.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *anthropicAdapter) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		httpReq, err := a.buildRequest(ctx, req, true)
		if err != nil {
			errChan <- err
			return
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := a.client.Do(httpReq)
		if err != nil {
			slog.Error("llm: anthropic stream failed", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			var parsed anthropicResponse
			msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
			if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
				msg = parsed.Error.Message
			}
			errChan <- fmt.Errorf("%s", msg)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				select {
				case contentChan <- event.Delta.Text:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			case "error":
				if event.Error != nil {
					errChan <- fmt.Errorf("%s", event.Error.Message)
				}
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	return contentChan, errChan
}
