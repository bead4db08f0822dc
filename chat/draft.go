package chat

import "sync"

// DraftStore keeps unsent input text keyed by conversation UID so a user
// can switch conversations without losing a half-typed message.
type DraftStore interface {
	Save(conversationUID, text string)
	Load(conversationUID string) string
	Clear(conversationUID string)
}

type memoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]string
}

// NewMemoryDraftStore creates an in-memory draft store.
func NewMemoryDraftStore() DraftStore {
	return &memoryDraftStore{drafts: make(map[string]string)}
}

func (d *memoryDraftStore) Save(conversationUID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		delete(d.drafts, conversationUID)
		return
	}
	d.drafts[conversationUID] = text
}

func (d *memoryDraftStore) Load(conversationUID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.drafts[conversationUID]
}

func (d *memoryDraftStore) Clear(conversationUID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, conversationUID)
}
