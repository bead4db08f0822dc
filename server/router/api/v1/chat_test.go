package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaleow/omnichat/ai/llm"
	"github.com/kaleow/omnichat/internal/metrics"
	"github.com/kaleow/omnichat/internal/profile"
)

// cannedAdapter replays a fixed completion.
type cannedAdapter struct {
	provider llm.Provider
	reply    string
	chunks   []string
	lastReq  llm.GenerationRequest
}

func (a *cannedAdapter) Provider() llm.Provider { return a.provider }

func (a *cannedAdapter) Available() bool { return true }

func (a *cannedAdapter) Complete(_ context.Context, req llm.GenerationRequest) llm.Result {
	a.lastReq = req
	return llm.Result{Kind: llm.ResultOK, Content: a.reply}
}

func (a *cannedAdapter) CompleteStream(_ context.Context, req llm.GenerationRequest) (<-chan string, <-chan error) {
	a.lastReq = req
	contentChan := make(chan string, len(a.chunks))
	errChan := make(chan error, 1)
	for _, chunk := range a.chunks {
		contentChan <- chunk
	}
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

func newTestService(adapters map[llm.Provider]llm.Adapter) *APIV1Service {
	dispatcher := llm.NewDispatcher(llm.NewRegistry(), adapters)
	return NewAPIV1Service(&profile.Profile{Mode: "dev"}, nil, dispatcher, metrics.NewExporter(metrics.DefaultConfig()))
}

func performChat(t *testing.T, service *APIV1Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, service.Chat(e.NewContext(req, rec)))
	return rec
}

func TestChatBufferedResponse(t *testing.T) {
	adapter := &cannedAdapter{provider: llm.ProviderOpenAI, reply: "Hi there!"}
	service := newTestService(map[llm.Provider]llm.Adapter{llm.ProviderOpenAI: adapter})

	rec := performChat(t, service, `{"messages":[{"Role":"user","Content":"Hello"}],"model":"gpt-3.5-turbo"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var response chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Hi there!", response.Content)
}

func TestChatAlwaysReturnsContentOnProviderFailure(t *testing.T) {
	service := newTestService(map[llm.Provider]llm.Adapter{
		llm.ProviderAnthropic: llm.NewUnavailableAdapter(llm.ProviderAnthropic, "ANTHROPIC_API_KEY"),
	})

	rec := performChat(t, service, `{"messages":[{"Role":"user","Content":"Hello"}],"model":"claude-3-opus"}`)

	// Provider problems surface as content, never as HTTP errors.
	require.Equal(t, http.StatusOK, rec.Code)
	var response chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response.Content, "ANTHROPIC_API_KEY")
}

func TestChatStreamWritesRawChunks(t *testing.T) {
	adapter := &cannedAdapter{provider: llm.ProviderOpenAI, chunks: []string{"Hel", "lo", "!"}}
	service := newTestService(map[llm.Provider]llm.Adapter{llm.ProviderOpenAI: adapter})

	rec := performChat(t, service, `{"messages":[{"Role":"user","Content":"Hello"}],"model":"gpt-4","stream":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello!", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")
	assert.True(t, adapter.lastReq.Stream)
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	service := newTestService(nil)
	rec := performChat(t, service, `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatPrependsCustomInstructions(t *testing.T) {
	adapter := &cannedAdapter{provider: llm.ProviderOpenAI, reply: "ok"}
	service := newTestService(map[llm.Provider]llm.Adapter{llm.ProviderOpenAI: adapter})

	performChat(t, service, `{"messages":[{"Role":"user","Content":"Hello"}],"model":"gpt-4","custom_instructions":"answer in haiku"}`)

	require.NotEmpty(t, adapter.lastReq.Messages)
	assert.Equal(t, "system", adapter.lastReq.Messages[0].Role)
	assert.Equal(t, "answer in haiku", adapter.lastReq.Messages[0].Content)
}

func TestRateLimitMiddleware(t *testing.T) {
	service := newTestService(nil)
	e := echo.New()

	handler := service.rateLimit(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	var limited bool
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.Header.Set(userIDHeader, "alice")
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst of requests should trip the limiter")

	// Another user has an independent bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set(userIDHeader, "bob")
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
