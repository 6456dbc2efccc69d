package convo

import (
	"github.com/redis/go-redis/v9"

	"github.com/convoagent/convo/internal/conversation"
)

// Type aliases for the conversation store contract
type (
	Conversation      = conversation.Conversation
	ConversationStore = conversation.Store
)

// NewMemoryConversationStore creates an in-memory store, suitable for tests
// and single-process setups.
func NewMemoryConversationStore() ConversationStore {
	return conversation.NewMemoryStore()
}

// NewRedisConversationStore creates a Redis-backed store. Records live under
// "conversation:<id>" keys; a "conversations:list" sorted set scored by last
// update time provides the recency index.
func NewRedisConversationStore(client redis.UniversalClient) ConversationStore {
	return conversation.NewRedisStore(client)
}
