// Package chat maintains per-conversation session state: optimistic message
// append, streaming reconciliation, edit/regenerate/cancel, and best-effort
// persistence that never blocks the visible conversation flow.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/kaleow/omnichat/ai/llm"
	"github.com/kaleow/omnichat/store"
)

// State is the session's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming_partial"
)

// Capabilities enumerates the optional features a session supports. One
// struct replaces the per-page feature variants of older chat UIs.
type Capabilities struct {
	VoiceInput         bool
	VoiceOutput        bool
	ImageGeneration    bool
	Streaming          bool
	WebSearch          bool
	CustomInstructions bool
}

// DefaultCapabilities enables the features the web client ships with.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Streaming:          true,
		ImageGeneration:    true,
		CustomInstructions: true,
	}
}

// Settings are the generation parameters read at request-build time.
type Settings struct {
	Model              string
	Temperature        float32
	MaxTokens          int
	Streaming          bool
	CustomInstructions string
}

// PersistenceFailure reports a swallowed store error. The chat flow
// continues on in-memory state; the host application decides whether to
// surface the failure.
type PersistenceFailure struct {
	Op  string
	Err error
}

// Store is the persistence surface a session needs. *store.Store satisfies it.
type Store interface {
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error)
	DeleteMessagesAfter(ctx context.Context, conversationID int32, afterID int32) error
}

// Session is the state machine for one open conversation. At most one
// generation request is in flight at a time; a second Submit while one is
// pending is a no-op.
type Session struct {
	store      Store
	dispatcher *llm.Dispatcher
	drafts     DraftStore

	caps      Capabilities
	onFailure func(PersistenceFailure)
	onChunk   func(content string)

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	userID   int32
	conv     *store.Conversation
	messages []store.Message
	settings Settings
}

// Option configures a session.
type Option func(*Session)

// WithCapabilities sets the session's capability flags.
func WithCapabilities(caps Capabilities) Option {
	return func(s *Session) { s.caps = caps }
}

// WithPersistenceFailureHandler registers a callback invoked for every
// swallowed store error.
func WithPersistenceFailureHandler(fn func(PersistenceFailure)) Option {
	return func(s *Session) { s.onFailure = fn }
}

// WithChunkHandler registers a callback invoked with the assistant message's
// accumulated content after each streamed chunk.
func WithChunkHandler(fn func(content string)) Option {
	return func(s *Session) { s.onChunk = fn }
}

// WithDraftStore sets the draft persistence collaborator.
func WithDraftStore(d DraftStore) Option {
	return func(s *Session) { s.drafts = d }
}

// NewSession creates an idle session for a user. The conversation row is
// created lazily on first Submit.
func NewSession(st Store, dispatcher *llm.Dispatcher, userID int32, settings Settings, opts ...Option) *Session {
	s := &Session{
		store:      st,
		dispatcher: dispatcher,
		userID:     userID,
		state:      StateIdle,
		settings:   settings,
		caps:       DefaultCapabilities(),
		drafts:     NewMemoryDraftStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the persisted conversation id, or 0 before the
// first Submit.
func (s *Session) ConversationID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return 0
	}
	return s.conv.ID
}

// Messages returns a copy of the in-memory transcript.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Settings returns the current generation settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces generation settings. Safe between requests; the
// in-flight request keeps the settings it was built with.
func (s *Session) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// conversation returns the active conversation row, or nil before the first
// Submit.
func (s *Session) conversation() *store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

func (s *Session) reportFailure(op string, err error) {
	slog.Warn("chat: persistence failure", "op", op, "error", err)
	if s.onFailure != nil {
		s.onFailure(PersistenceFailure{Op: op, Err: err})
	}
}

// Submit sends user text through the dispatcher and reconciles the result
// into the transcript. Blank text and an already-pending request are no-ops.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if text == "" || s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateSending
	settings := s.settings
	s.mu.Unlock()

	// Conversation row is created lazily, titled from the first message.
	if err := s.ensureConversation(ctx, text, settings.Model); err != nil {
		// Without a conversation row the transcript still works in memory.
		s.reportFailure("create_conversation", err)
	}

	now := time.Now().UnixMilli()
	userMsg := store.Message{
		UID:       uuid.NewString(),
		Role:      "user",
		Content:   text,
		Type:      store.MessageTypeText,
		CreatedTs: now,
	}

	conv := s.conversation()
	if conv != nil {
		userMsg.ConversationID = conv.ID
	}

	s.mu.Lock()
	// Optimistic append: visible before any server round-trip.
	s.messages = append(s.messages, userMsg)
	idx := len(s.messages) - 1
	s.mu.Unlock()

	// Best-effort persistence. A failure must not lose the user's message or
	// block the completion request.
	if conv != nil {
		if created, err := s.store.CreateMessage(ctx, &userMsg); err != nil {
			s.reportFailure("save_user_message", err)
		} else {
			s.mu.Lock()
			s.messages[idx].ID = created.ID
			s.mu.Unlock()
		}
		if s.drafts != nil {
			s.drafts.Clear(conv.UID)
		}
	}

	return s.complete(ctx, settings)
}

// ensureConversation creates the conversation row on first use.
func (s *Session) ensureConversation(ctx context.Context, firstMessage, model string) error {
	s.mu.Lock()
	if s.conv != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	now := time.Now().UnixMilli()
	conv, err := s.store.CreateConversation(ctx, &store.Conversation{
		UID:       shortuuid.New(),
		UserID:    s.userID,
		Title:     DeriveTitle(firstMessage),
		Model:     model,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()
	return nil
}

// buildRequest assembles the normalized request from the in-memory
// transcript, stripped to role and content. Custom instructions are
// prepended as a system message when enabled and non-empty.
func (s *Session) buildRequest(settings Settings) llm.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]llm.Message, 0, len(s.messages)+1)
	if s.caps.CustomInstructions && strings.TrimSpace(settings.CustomInstructions) != "" {
		messages = append(messages, llm.SystemPrompt(settings.CustomInstructions))
	}
	for _, m := range s.messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	req := llm.GenerationRequest{
		Messages:    messages,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Stream:      settings.Streaming && s.caps.Streaming,
	}
	req.Normalize()
	return req
}

// complete runs the dispatch half of a turn against the current transcript:
// request build, provider call, reconciliation, persistence, metadata update.
// The caller has already transitioned the session to StateSending.
func (s *Session) complete(ctx context.Context, settings Settings) error {
	req := s.buildRequest(settings)

	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.state = StateIdle
		s.mu.Unlock()
	}()

	if req.Stream {
		s.completeStreaming(reqCtx, req, settings)
	} else {
		s.completeBuffered(reqCtx, req, settings)
	}
	return nil
}

func (s *Session) completeBuffered(ctx context.Context, req llm.GenerationRequest, settings Settings) {
	result := s.dispatcher.Dispatch(ctx, req)

	if ctx.Err() != nil {
		// User abort: discard the in-flight result, no assistant message.
		return
	}

	s.appendAssistant(ctx, result.Content, settings.Model, result.OK())
}

func (s *Session) completeStreaming(ctx context.Context, req llm.GenerationRequest, settings Settings) {
	now := time.Now().UnixMilli()
	placeholder := store.Message{
		UID:       uuid.NewString(),
		Role:      "assistant",
		Type:      store.MessageTypeText,
		Model:     settings.Model,
		CreatedTs: now,
	}

	s.mu.Lock()
	if s.conv != nil {
		placeholder.ConversationID = s.conv.ID
	}
	s.messages = append(s.messages, placeholder)
	idx := len(s.messages) - 1
	s.state = StateStreaming
	s.mu.Unlock()

	contentChan, errChan := s.dispatcher.DispatchStream(ctx, req)

	var streamErr error
	var sb strings.Builder
	for chunk := range contentChan {
		sb.WriteString(chunk)
		s.mu.Lock()
		s.messages[idx].Content = sb.String()
		s.mu.Unlock()
		if s.onChunk != nil {
			s.onChunk(sb.String())
		}
	}
	select {
	case streamErr = <-errChan:
	default:
	}

	cancelled := ctx.Err() != nil
	content := sb.String()

	if content == "" {
		if cancelled {
			// Nothing accumulated before the abort: drop the placeholder.
			s.mu.Lock()
			s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
			s.mu.Unlock()
			return
		}
		if streamErr != nil {
			// Surface the failure in the transcript, never drop it silently.
			content = s.dispatcher.FailureMessage(req.Model, streamErr)
			s.mu.Lock()
			s.messages[idx].Content = content
			s.mu.Unlock()
			s.touchConversation(ctx, settings.Model)
			return
		}
	}

	s.mu.Lock()
	s.messages[idx].Content = content
	msg := s.messages[idx]
	s.mu.Unlock()

	// Whatever partial content accumulated is kept and persisted, whether the
	// stream finished, was cancelled, or broke mid-way.
	s.persistAssistant(ctx, idx, msg)

	if streamErr != nil && !cancelled {
		// A broken stream still ends with visible error text; it goes in its
		// own message so the partial output above stays intact.
		s.appendAssistant(ctx, s.dispatcher.FailureMessage(req.Model, streamErr), settings.Model, false)
		return
	}
	s.touchConversation(ctx, settings.Model)
}

// appendAssistant adds a finalized assistant message (success or visible
// error text) and persists it when it carries real model output.
func (s *Session) appendAssistant(ctx context.Context, content, model string, persist bool) {
	msg := store.Message{
		UID:       uuid.NewString(),
		Role:      "assistant",
		Content:   content,
		Type:      store.MessageTypeText,
		Model:     model,
		CreatedTs: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	if s.conv != nil {
		msg.ConversationID = s.conv.ID
	}
	s.messages = append(s.messages, msg)
	idx := len(s.messages) - 1
	s.mu.Unlock()

	if persist {
		s.persistAssistant(ctx, idx, msg)
	}
	s.touchConversation(ctx, model)
}

func (s *Session) persistAssistant(ctx context.Context, idx int, msg store.Message) {
	if s.conversation() == nil || msg.Content == "" {
		return
	}
	// Persistence happens after cancellation too, so detach from the
	// request context.
	persistCtx := context.WithoutCancel(ctx)
	if created, err := s.store.CreateMessage(persistCtx, &msg); err != nil {
		s.reportFailure("save_assistant_message", err)
	} else {
		s.mu.Lock()
		if idx < len(s.messages) && s.messages[idx].UID == msg.UID {
			s.messages[idx].ID = created.ID
		}
		s.mu.Unlock()
	}
}

// touchConversation refreshes conversation metadata after a turn.
func (s *Session) touchConversation(ctx context.Context, model string) {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	if conv == nil {
		return
	}

	now := time.Now().UnixMilli()
	update := &store.UpdateConversation{ID: conv.ID, UpdatedTs: &now}
	if model != "" && model != conv.Model {
		update.Model = &model
	}
	persistCtx := context.WithoutCancel(ctx)
	if updated, err := s.store.UpdateConversation(persistCtx, update); err != nil {
		s.reportFailure("update_conversation", err)
	} else {
		s.mu.Lock()
		s.conv = updated
		s.mu.Unlock()
	}
}

// Cancel aborts the in-flight generation request, if any. Cancellation after
// completion is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// EditMessage mutates the message at index in place and marks it edited.
// Editing a user message discards every later message from the active turn
// and resubmits with the truncated context. The persisted store mirrors the
// truncation.
func (s *Session) EditMessage(ctx context.Context, index int, newContent string) error {
	s.mu.Lock()
	if s.state != StateIdle || index < 0 || index >= len(s.messages) {
		s.mu.Unlock()
		return nil
	}
	s.messages[index].Content = newContent
	s.messages[index].Edited = true
	msg := s.messages[index]
	isUser := msg.Role == "user"
	truncated := false
	if isUser && index+1 < len(s.messages) {
		truncated = true
		s.messages = s.messages[:index+1]
	}
	s.mu.Unlock()

	if msg.ID != 0 {
		edited := true
		if _, err := s.store.UpdateMessage(ctx, &store.UpdateMessage{
			ID:      msg.ID,
			Content: &newContent,
			Edited:  &edited,
		}); err != nil {
			s.reportFailure("update_message", err)
		}
	}

	if !isUser {
		return nil
	}

	// Mirror the in-memory truncation. The edited message's id anchors the
	// cut; an unpersisted anchor means there is nothing reliable to delete
	// against, so the store is left alone.
	if conv := s.conversation(); truncated && msg.ID != 0 && conv != nil {
		if err := s.store.DeleteMessagesAfter(ctx, conv.ID, msg.ID); err != nil {
			s.reportFailure("truncate_messages", err)
		}
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateSending
	settings := s.settings
	s.mu.Unlock()

	return s.complete(ctx, settings)
}

// Regenerate truncates the transcript to the most recent user message at or
// before index and requests a fresh assistant response for it. The previous
// assistant message disappears from view and from the persisted store.
func (s *Session) Regenerate(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	if index >= len(s.messages) {
		index = len(s.messages) - 1
	}
	userIdx := -1
	for i := index; i >= 0; i-- {
		if s.messages[i].Role == "user" {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		s.mu.Unlock()
		return nil
	}
	anchor := s.messages[userIdx]
	truncated := false
	if userIdx+1 < len(s.messages) {
		truncated = true
		s.messages = s.messages[:userIdx+1]
	}
	s.state = StateSending
	settings := s.settings
	s.mu.Unlock()

	if conv := s.conversation(); truncated && anchor.ID != 0 && conv != nil {
		if err := s.store.DeleteMessagesAfter(ctx, conv.ID, anchor.ID); err != nil {
			s.reportFailure("truncate_messages", err)
		}
	}

	return s.complete(ctx, settings)
}

// DeleteMessage removes a message from the in-memory transcript only.
// Server-side rows are left alone; the divergence matches the client's
// view-local deletion semantics. A no-op while a response is in flight,
// since the streaming writer holds an index into the transcript.
func (s *Session) DeleteMessage(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	if index < 0 || index >= len(s.messages) {
		return
	}
	s.messages = append(s.messages[:index], s.messages[index+1:]...)
}

// LoadConversation replaces in-memory state with the persisted transcript
// and restores the conversation's remembered model.
func (s *Session) LoadConversation(ctx context.Context, id int32) error {
	conversations, err := s.store.ListConversations(ctx, &store.FindConversation{ID: &id})
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		return errNotFound
	}
	conv := conversations[0]

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &id})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conv
	s.messages = make([]store.Message, len(messages))
	for i, m := range messages {
		s.messages[i] = *m
	}
	if conv.Model != "" {
		s.settings.Model = conv.Model
	}
	s.state = StateIdle
	if s.drafts != nil {
		s.drafts.Clear(conv.UID)
	}
	return nil
}

// DeleteConversation removes the persisted conversation and its messages.
// If it is the active conversation the session resets to a blank one.
func (s *Session) DeleteConversation(ctx context.Context, id int32) error {
	if err := s.store.DeleteConversation(ctx, &store.DeleteConversation{ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil && s.conv.ID == id {
		s.conv = nil
		s.messages = nil
		s.state = StateIdle
	}
	return nil
}

// SaveDraft stores unsent input for the active conversation.
func (s *Session) SaveDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drafts == nil || s.conv == nil {
		return
	}
	s.drafts.Save(s.conv.UID, text)
}

// LoadDraft returns unsent input for the active conversation.
func (s *Session) LoadDraft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drafts == nil || s.conv == nil {
		return ""
	}
	return s.drafts.Load(s.conv.UID)
}
