package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaleow/omnichat/internal/profile"
	"github.com/kaleow/omnichat/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "omnichat_test.db"),
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func createTestConversation(t *testing.T, driver store.Driver, userID int32) *store.Conversation {
	t.Helper()
	conv, err := driver.CreateConversation(context.Background(), &store.Conversation{
		UID:       uuid.NewString(),
		UserID:    userID,
		Title:     "test conversation",
		Model:     "gpt-4",
		CreatedTs: 1000,
		UpdatedTs: 1000,
	})
	require.NoError(t, err)
	return conv
}

func createTestMessage(t *testing.T, driver store.Driver, conversationID int32, role, content string, ts int64) *store.Message {
	t.Helper()
	msg, err := driver.CreateMessage(context.Background(), &store.Message{
		UID:            uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Type:           store.MessageTypeText,
		CreatedTs:      ts,
	})
	require.NoError(t, err)
	return msg
}

func TestConversationCRUD(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	conv := createTestConversation(t, driver, 7)
	require.NotZero(t, conv.ID)

	userID := int32(7)
	list, err := driver.ListConversations(ctx, &store.FindConversation{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "test conversation", list[0].Title)

	otherUser := int32(8)
	list, err = driver.ListConversations(ctx, &store.FindConversation{UserID: &otherUser})
	require.NoError(t, err)
	assert.Empty(t, list)

	newTitle := "renamed"
	newTs := int64(2000)
	updated, err := driver.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conv.ID,
		Title:     &newTitle,
		UpdatedTs: &newTs,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, int64(2000), updated.UpdatedTs)
	assert.Equal(t, "gpt-4", updated.Model)

	require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}))
	list, err = driver.ListConversations(ctx, &store.FindConversation{ID: &conv.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListConversationsOrdersByUpdatedDesc(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	older := createTestConversation(t, driver, 1)
	newer := createTestConversation(t, driver, 1)
	ts := int64(9999)
	_, err := driver.UpdateConversation(ctx, &store.UpdateConversation{ID: newer.ID, UpdatedTs: &ts})
	require.NoError(t, err)

	userID := int32(1)
	list, err := driver.ListConversations(ctx, &store.FindConversation{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestMessageCRUD(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	conv := createTestConversation(t, driver, 1)
	first := createTestMessage(t, driver, conv.ID, "user", "hello", 1000)
	createTestMessage(t, driver, conv.ID, "assistant", "hi there", 1001)

	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hello", list[0].Content)
	assert.Equal(t, "hi there", list[1].Content)

	content := "hello, edited"
	edited := true
	updated, err := driver.UpdateMessage(ctx, &store.UpdateMessage{
		ID:      first.ID,
		Content: &content,
		Edited:  &edited,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", updated.Content)
	assert.True(t, updated.Edited)

	require.NoError(t, driver.DeleteMessage(ctx, &store.DeleteMessage{ID: first.ID}))
	list, err = driver.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMessagesOrderStableWithinSameTimestamp(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	conv := createTestConversation(t, driver, 1)
	createTestMessage(t, driver, conv.ID, "user", "first", 1000)
	createTestMessage(t, driver, conv.ID, "assistant", "second", 1000)
	createTestMessage(t, driver, conv.ID, "user", "third", 1000)

	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Content)
	assert.Equal(t, "second", list[1].Content)
	assert.Equal(t, "third", list[2].Content)
}

func TestDeleteMessagesAfter(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	conv := createTestConversation(t, driver, 1)
	anchor := createTestMessage(t, driver, conv.ID, "user", "keep me", 1000)
	createTestMessage(t, driver, conv.ID, "assistant", "drop me", 1000)
	createTestMessage(t, driver, conv.ID, "user", "drop me too", 1001)

	other := createTestConversation(t, driver, 2)
	keepOther := createTestMessage(t, driver, other.ID, "user", "unrelated", 1002)

	require.NoError(t, driver.DeleteMessagesAfter(ctx, conv.ID, anchor.ID))

	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep me", list[0].Content)

	// Other conversations are untouched even though their ids are higher.
	list, err = driver.ListMessages(ctx, &store.FindMessage{ConversationID: &other.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keepOther.ID, list[0].ID)
}

func TestDeleteConversationCascadesMessages(t *testing.T) {
	driver := newTestDriver(t)
	ctx := context.Background()

	conv := createTestConversation(t, driver, 1)
	createTestMessage(t, driver, conv.ID, "user", "hello", 1000)
	createTestMessage(t, driver, conv.ID, "assistant", "hi", 1001)

	require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}))

	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}
