package conversation

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore provides an in-memory implementation of Store.
// Useful for testing and development. Not suitable for production.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
	}
}

// Save persists the full record.
func (s *MemoryStore) Save(ctx context.Context, conv Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}

// Load retrieves a conversation by ID.
func (s *MemoryStore) Load(ctx context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Delete removes a conversation, reporting whether it existed.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.conversations[id]
	delete(s.conversations, id)
	return exists, nil
}

// ListIDs returns conversation IDs ordered by most recent activity first.
func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.conversations[ids[i]], s.conversations[ids[j]]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}
