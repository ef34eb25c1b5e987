package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
)

const defaultCacheTTL = 5 * time.Minute

// Cache stores ranked responses in Redis. Keys carry the vocabulary and
// schema versions so a reload of either never serves stale rankings.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Key identifies a response for in. The vocabulary version is part of the
// intent fingerprint.
func (c *Cache) Key(in intent.QueryIntent, schemaVersion string, mode Mode, topK int) string {
	return fmt.Sprintf("search:%s:%s:%s:%s:%d", in.VocabularyVersion, schemaVersion, mode, in.Fingerprint(), topK)
}

// Get returns the cached response for key. A miss is (nil, nil).
func (c *Cache) Get(ctx context.Context, key string) (*Response, error) {
	cached, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewCacheError(err, apperrors.ErrCodeCacheRead)
	}

	var response Response
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		return nil, apperrors.NewCacheError(err, apperrors.ErrCodeCacheRead)
	}
	return &response, nil
}

// Set stores response under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, response *Response) error {
	data, err := json.Marshal(response)
	if err != nil {
		return apperrors.NewCacheError(err, apperrors.ErrCodeCacheWrite)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return apperrors.NewCacheError(err, apperrors.ErrCodeCacheWrite)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
