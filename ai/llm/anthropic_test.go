package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeAnthropicMessages(t *testing.T) {
	system, messages := shapeAnthropicMessages([]Message{
		SystemPrompt("be brief"),
		UserMessage("hello"),
		AssistantMessage("hi"),
		{Role: "tool", Content: "weird role"},
		SystemPrompt("be kind"),
	})

	assert.Equal(t, "be brief\nbe kind", system)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
	// Unknown roles are coerced to user, never dropped.
	assert.Equal(t, "user", messages[2].Role)
	assert.Equal(t, "weird role", messages[2].Content)
}

func TestShapeAnthropicMessagesNoSystem(t *testing.T) {
	system, messages := shapeAnthropicMessages([]Message{UserMessage("hello")})
	assert.Empty(t, system)
	require.Len(t, messages, 1)
}

func TestAnthropicComplete(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Hi "},
				{"type": "text", "text": "there!"},
			},
		})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", server.URL, 5*time.Second)
	result := adapter.Complete(context.Background(), GenerationRequest{
		Messages: []Message{SystemPrompt("be brief"), UserMessage("hello")},
		Model:    "claude-3-5-sonnet",
	})

	require.True(t, result.OK())
	assert.Equal(t, "Hi there!", result.Content)
	assert.Equal(t, "be brief", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid x-api-key"},
		})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("bad-key", server.URL, 5*time.Second)
	result := adapter.Complete(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hello")},
		Model:    "claude-3-5-sonnet",
	})

	assert.Equal(t, ResultProviderError, result.Kind)
	assert.Contains(t, result.Content, "Anthropic: invalid x-api-key")
	assert.Contains(t, result.Content, "Please check your API key.")
}

func TestAnthropicCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"message_start"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`,
			`{"type":"message_stop"}`,
		}
		for _, event := range events {
			_, _ = w.Write([]byte("data: " + event + "\n\n"))
		}
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("test-key", server.URL, 5*time.Second)
	contentChan, errChan := adapter.CompleteStream(context.Background(), GenerationRequest{
		Messages: []Message{UserMessage("hello")},
		Model:    "claude-3-5-sonnet",
	})

	var got string
	for chunk := range contentChan {
		got += chunk
	}
	assert.Equal(t, "Hello", got)
	assert.NoError(t, <-errChan)
}
