package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/kaleow/omnichat/ai/llm"
)

// Manager hands out sessions keyed by user and conversation, so concurrent
// requests for the same conversation share one state machine while different
// conversations proceed independently.
type Manager struct {
	store      Store
	dispatcher *llm.Dispatcher
	opts       []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. The options are applied to every
// session it creates.
func NewManager(st Store, dispatcher *llm.Dispatcher, opts ...Option) *Manager {
	return &Manager{
		store:      st,
		dispatcher: dispatcher,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

func sessionKey(userID, conversationID int32) string {
	return fmt.Sprintf("%d/%d", userID, conversationID)
}

// Session returns the session for an existing conversation, loading its
// transcript on first access.
func (m *Manager) Session(ctx context.Context, userID, conversationID int32, settings Settings) (*Session, error) {
	key := sessionKey(userID, conversationID)

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := NewSession(m.store, m.dispatcher, userID, settings, m.opts...)
	if err := s.LoadConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		return existing, nil
	}
	m.sessions[key] = s
	return s, nil
}

// NewConversation creates a blank session. It is registered under its
// conversation id after the first Submit persists the conversation row.
func (m *Manager) NewConversation(userID int32, settings Settings) *Session {
	return NewSession(m.store, m.dispatcher, userID, settings, m.opts...)
}

// Register indexes a session under its conversation id so later requests
// find it. A session without a persisted conversation is ignored.
func (m *Manager) Register(userID int32, s *Session) {
	id := s.ConversationID()
	if id == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(userID, id)] = s
}

// Evict drops the session for a conversation, typically after deletion.
func (m *Manager) Evict(userID, conversationID int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(userID, conversationID))
}
