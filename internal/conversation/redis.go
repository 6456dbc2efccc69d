package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	conversationPrefix = "conversation:"
	conversationList   = "conversations:list"
)

// RedisStore persists conversations in Redis: one JSON record per
// conversation under "conversation:{id}" plus a sorted set keyed by
// last-activity time for recency listing without a key scan.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed conversation store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save persists the full record and bumps the recency index atomically.
func (s *RedisStore) Save(ctx context.Context, conv Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", conv.ID, err)
	}

	score := float64(conv.UpdatedAt.UnixNano()) / float64(time.Second)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, conversationPrefix+conv.ID, data, 0)
	pipe.ZAdd(ctx, conversationList, redis.Z{Score: score, Member: conv.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Load retrieves a conversation by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (Conversation, error) {
	data, err := s.client.Get(ctx, conversationPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation %s: %w", id, err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

// Delete removes the record and its index entry, reporting whether the
// record existed.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.client.Del(ctx, conversationPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	// Best effort: a leftover index entry is tolerated by ListIDs readers.
	if err := s.client.ZRem(ctx, conversationList, id).Err(); err != nil {
		return deleted > 0, fmt.Errorf("remove conversation %s from index: %w", id, err)
	}
	return deleted > 0, nil
}

// ListIDs returns conversation IDs ordered by most recent activity first.
func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, conversationList, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}
