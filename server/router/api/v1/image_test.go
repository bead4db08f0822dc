package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaleow/omnichat/ai/llm"
	"github.com/kaleow/omnichat/internal/metrics"
	"github.com/kaleow/omnichat/internal/profile"
	"github.com/kaleow/omnichat/store"
	"github.com/kaleow/omnichat/store/db/sqlite"
)

func newImageTestService(t *testing.T, p *profile.Profile) *APIV1Service {
	t.Helper()
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	st := store.New(driver, p)
	return NewAPIV1Service(p, st, llm.NewDispatcher(llm.NewRegistry(), nil), metrics.NewExporter(metrics.DefaultConfig()))
}

// callerID resolves the user id a header-less request maps to.
func callerID(e *echo.Echo) int32 {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return userID(e.NewContext(req, httptest.NewRecorder()))
}

func TestGenerateImageAttachesToConversation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://images.example/cat.png"}]}`))
	}))
	defer upstream.Close()

	p := &profile.Profile{
		Mode:          "dev",
		Driver:        "sqlite",
		DSN:           filepath.Join(t.TempDir(), "omnichat_test.db"),
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: upstream.URL,
	}
	service := newImageTestService(t, p)
	e := echo.New()

	conv, err := service.Store.CreateConversation(context.Background(), &store.Conversation{
		UID:       uuid.NewString(),
		UserID:    callerID(e),
		Title:     "cat pictures",
		Model:     "gpt-4",
		CreatedTs: 1000,
		UpdatedTs: 1000,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/image", strings.NewReader(`{"prompt":"a cat in a hat","conversation_id":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, service.GenerateImage(e.NewContext(req, rec)))

	require.Equal(t, http.StatusOK, rec.Code)
	var response imageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "https://images.example/cat.png", response.ImageURL)
	require.NotNil(t, response.Message)
	assert.Equal(t, "image", response.Message.Type)

	// The image landed in the transcript as an assistant image message.
	messages, err := service.Store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "assistant", messages[0].Role)
	assert.Equal(t, store.MessageTypeImage, messages[0].Type)
	assert.Equal(t, "a cat in a hat", messages[0].Content)
	assert.Equal(t, "https://images.example/cat.png", messages[0].ImageURL)

	// The conversation surfaced to the top of the recency ordering.
	updated, err := service.Store.ListConversations(context.Background(), &store.FindConversation{ID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Greater(t, updated[0].UpdatedTs, int64(1000))
}

func TestGenerateImageRejectsForeignConversation(t *testing.T) {
	p := &profile.Profile{
		Mode:         "dev",
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "omnichat_test.db"),
		OpenAIAPIKey: "test-key",
	}
	service := newImageTestService(t, p)
	e := echo.New()

	_, err := service.Store.CreateConversation(context.Background(), &store.Conversation{
		UID:       uuid.NewString(),
		UserID:    callerID(e) + 1,
		Title:     "someone else's",
		Model:     "gpt-4",
		CreatedTs: 1000,
		UpdatedTs: 1000,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/image", strings.NewReader(`{"prompt":"a cat","conversation_id":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, service.GenerateImage(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateImageWithoutAPIKey(t *testing.T) {
	service := newTestService(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/image", strings.NewReader(`{"prompt":"a cat"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, service.GenerateImage(echo.New().NewContext(req, rec)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), profile.EnvOpenAIAPIKey)
}
