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
	"net/url"
	"strings"
	"time"
)

const googleBaseURL = "https://generativelanguage.googleapis.com"

// googleAdapter calls the Gemini generateContent API over plain HTTP/JSON.
// Gemini takes a chat-session shape: prior turns form a history with the
// assistant role renamed to "model", and the final message is the new turn.
type googleAdapter struct {
	client  *http.Client
	apiKey  string
	baseURL string
	timeout time.Duration
}

// NewGoogleAdapter creates the adapter for the Google Gemini API.
func NewGoogleAdapter(apiKey, baseURL string, timeout time.Duration) Adapter {
	if baseURL == "" {
		baseURL = googleBaseURL
	}
	return &googleAdapter{
		client:  newHTTPClient(0),
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

func (a *googleAdapter) Provider() Provider { return ProviderGoogle }

func (a *googleAdapter) Available() bool { return true }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents         []googleContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float32 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// shapeGoogleContents converts the message list into Gemini chat-session
// contents: every turn before the last becomes history with assistant
// remapped to "model" and everything else to "user"; the final message's
// content is appended as the new user turn.
func shapeGoogleContents(messages []Message) []googleContent {
	if len(messages) == 0 {
		return nil
	}
	out := make([]googleContent, 0, len(messages))
	for _, m := range messages[:len(messages)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out = append(out, googleContent{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}
	last := messages[len(messages)-1]
	out = append(out, googleContent{Role: "user", Parts: []googlePart{{Text: last.Content}}})
	return out
}

func (a *googleAdapter) buildRequest(ctx context.Context, req GenerationRequest, stream bool) (*http.Request, error) {
	req.Normalize()

	var payload googleRequest
	payload.Contents = shapeGoogleContents(req.Messages)
	payload.GenerationConfig.Temperature = req.Temperature
	payload.GenerationConfig.MaxOutputTokens = req.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	method := "generateContent"
	query := url.Values{"key": {a.apiKey}}
	if stream {
		method = "streamGenerateContent"
		query.Set("alt", "sse")
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s?%s", a.baseURL, req.Model, method, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (a *googleAdapter) Complete(ctx context.Context, req GenerationRequest) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return failureResult(ProviderGoogle, err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		slog.Error("llm: google request failed", "error", err)
		return failureResult(ProviderGoogle, err)
	}
	defer resp.Body.Close()

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return failureResult(ProviderGoogle, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return failureResult(ProviderGoogle, fmt.Errorf("%s", msg))
	}
	if len(parsed.Candidates) == 0 {
		return failureResult(ProviderGoogle, fmt.Errorf("empty response"))
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return Result{Kind: ResultOK, Content: sb.String()}
}

func (a *googleAdapter) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
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

		resp, err := a.client.Do(httpReq)
		if err != nil {
			slog.Error("llm: google stream failed", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			var parsed googleResponse
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
			var parsed googleResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &parsed); err != nil {
				continue
			}
			if len(parsed.Candidates) == 0 {
				continue
			}
			for _, part := range parsed.Candidates[0].Content.Parts {
				if part.Text == "" {
					continue
				}
				select {
				case contentChan <- part.Text:
				case <-ctx.Done():
					return
				}
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
