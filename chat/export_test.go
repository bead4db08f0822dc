package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaleow/omnichat/store"
)

func exportFixture() (*store.Conversation, []*store.Message) {
	conv := &store.Conversation{ID: 1, Title: "Trip planning", Model: "gpt-4"}
	messages := []*store.Message{
		{Role: "user", Content: "Where should I go in May?", Type: store.MessageTypeText},
		{Role: "assistant", Content: "Consider **Lisbon** or Kyoto.", Type: store.MessageTypeText, Model: "gpt-4"},
		{Role: "assistant", Content: "a sunny beach", Type: store.MessageTypeImage, ImageURL: "https://img.example/beach.png"},
	}
	return conv, messages
}

func TestExportMarkdown(t *testing.T) {
	conv, messages := exportFixture()
	md := ExportMarkdown(conv, messages)

	assert.Contains(t, md, "# Trip planning")
	assert.Contains(t, md, "## You")
	assert.Contains(t, md, "## Assistant (gpt-4)")
	assert.Contains(t, md, "Where should I go in May?")
	assert.Contains(t, md, "![a sunny beach](https://img.example/beach.png)")
}

func TestExportHTML(t *testing.T) {
	conv, messages := exportFixture()
	page, err := ExportHTML(conv, messages)
	require.NoError(t, err)

	assert.Contains(t, page, "<title>Trip planning</title>")
	assert.Contains(t, page, "<h1")
	// Markdown emphasis is rendered, not passed through.
	assert.Contains(t, page, "<strong>Lisbon</strong>")
	assert.NotContains(t, page, "**Lisbon**")
}

func TestExportMarkdownUntitled(t *testing.T) {
	md := ExportMarkdown(&store.Conversation{}, nil)
	assert.Contains(t, md, "# Conversation")
}
