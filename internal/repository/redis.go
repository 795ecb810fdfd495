package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/gogo/chatd/internal/chatfile"
	"github.com/xiaot623/gogo/chatd/internal/domain"
)

const (
	// Redis key prefix for conversation snapshots
	conversationKeyPrefix = "chatd:conversation:"
	// Default TTL for snapshot keys
	defaultCacheTTL = 30 * time.Minute
)

// RedisCache implements ConversationCache using Redis. Snapshots are stored
// in the chat file format.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Ensure RedisCache implements ConversationCache interface.
var _ ConversationCache = (*RedisCache)(nil)

// NewRedisCache creates a cache from a redis:// URL.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached conversation, or nil on a miss. The TTL is
// refreshed on every hit.
func (c *RedisCache) Get(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	key := c.key(sessionID)
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	conv, err := chatfile.Decode(bytes.NewReader(val))
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", key, err)
	}

	_ = c.client.Expire(ctx, key, c.ttl).Err()
	return conv, nil
}

// Set stores a snapshot of conv.
func (c *RedisCache) Set(ctx context.Context, sessionID string, conv *domain.Conversation) error {
	var buf bytes.Buffer
	if err := chatfile.Encode(&buf, conv); err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID), buf.Bytes(), c.ttl).Err()
}

// Delete drops the snapshot.
func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(sessionID string) string {
	return conversationKeyPrefix + sessionID
}
