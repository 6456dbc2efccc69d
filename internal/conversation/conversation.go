// Package conversation defines persisted conversation records and the store
// contract used by the conversation manager.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/convoagent/convo/providers"
)

// ErrConversationNotFound is returned when a conversation doesn't exist.
var ErrConversationNotFound = errors.New("convo: conversation not found")

// Conversation is a persisted multi-turn conversation. Messages are stored in
// the exact order the model saw them, including tool-call requests and their
// linked tool results.
type Conversation struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Messages  []providers.Message `json:"messages"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store persists conversation records and a recency index.
//
// Implementations must keep the index entry for a conversation in step with
// its record on Save; readers of the index must tolerate entries whose record
// has been deleted.
type Store interface {
	// Save persists the full record and bumps the recency index.
	Save(ctx context.Context, conv Conversation) error

	// Load retrieves a conversation by ID, or ErrConversationNotFound.
	Load(ctx context.Context, id string) (Conversation, error)

	// Delete removes a conversation, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListIDs returns conversation IDs ordered by most recent activity first.
	ListIDs(ctx context.Context) ([]string, error)
}
