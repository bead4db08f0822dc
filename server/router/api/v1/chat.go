package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kaleow/omnichat/ai/llm"
)

type chatRequest struct {
	Messages           []llm.Message `json:"messages"`
	Model              string        `json:"model"`
	Temperature        float32       `json:"temperature"`
	MaxTokens          int           `json:"max_tokens"`
	Stream             bool          `json:"stream"`
	CustomInstructions string        `json:"custom_instructions"`
}

type chatResponse struct {
	Content string `json:"content"`
}

// Chat performs a stateless completion over the posted message list. The
// response body always carries content, with provider failures rendered as
// display text rather than HTTP errors.
func (s *APIV1Service) Chat(c echo.Context) error {
	request := &chatRequest{}
	if err := c.Bind(request); err != nil {
		return errorResponse(c, http.StatusBadRequest, "malformed request body")
	}
	if len(request.Messages) == 0 {
		return errorResponse(c, http.StatusBadRequest, "messages must not be empty")
	}

	messages := request.Messages
	if request.CustomInstructions != "" {
		messages = append([]llm.Message{llm.SystemPrompt(request.CustomInstructions)}, messages...)
	}

	req := llm.GenerationRequest{
		Messages:    messages,
		Model:       request.Model,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
		Stream:      request.Stream,
	}
	req.Normalize()

	if err := s.llmSemaphore.Acquire(c.Request().Context(), 1); err != nil {
		return errorResponse(c, http.StatusServiceUnavailable, "server is overloaded, try again shortly")
	}
	defer s.llmSemaphore.Release(1)

	provider := string(s.Dispatcher.Registry().ProviderFor(req.Model))

	if request.Stream {
		return s.streamChat(c, req, provider)
	}

	start := time.Now()
	result := s.Dispatcher.Dispatch(c.Request().Context(), req)
	s.Metrics.RecordChatRequest(provider, req.Model, time.Since(start), result.OK())
	if !result.OK() {
		s.Metrics.RecordProviderError(provider, string(result.Kind))
	}

	return c.JSON(http.StatusOK, chatResponse{Content: result.Content})
}

// streamChat writes chunks to the response as they arrive. The body is plain
// incremental text; clients concatenate chunks in order.
func (s *APIV1Service) streamChat(c echo.Context, req llm.GenerationRequest, provider string) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	s.Metrics.StreamStarted()
	defer s.Metrics.StreamFinished()

	start := time.Now()
	ctx := c.Request().Context()
	contentChan, errChan := s.Dispatcher.DispatchStream(ctx, req)

	for chunk := range contentChan {
		if _, err := c.Response().Write([]byte(chunk)); err != nil {
			// Client went away; the context cancellation stops the provider call.
			return nil
		}
		c.Response().Flush()
		s.Metrics.RecordStreamChunk(provider)
	}

	var streamErr error
	select {
	case streamErr = <-errChan:
	default:
	}
	if streamErr != nil {
		// Headers are already sent, so the failure is delivered as trailing
		// display text in the stream itself.
		_, _ = c.Response().Write([]byte(s.Dispatcher.FailureMessage(req.Model, streamErr)))
		c.Response().Flush()
		s.Metrics.RecordProviderError(provider, "stream")
	}
	s.Metrics.RecordChatRequest(provider, req.Model, time.Since(start), streamErr == nil)
	return nil
}
