package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps each chat's message history hot in Redis as a list under
// chat:<id>. Every append refreshes the TTL, so the entry expires a fixed
// window after the *last* activity, not the first.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(chatID string) string {
	return "chat:" + chatID
}

func (c *Cache) Append(ctx context.Context, m *Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, cacheKey(m.ChatID), body)
	pipe.Expire(ctx, cacheKey(m.ChatID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Messages returns the cached history, oldest first. A missing key returns
// an empty slice, which callers treat as a cache miss.
func (c *Cache) Messages(ctx context.Context, chatID string) ([]Message, error) {
	raw, err := c.client.LRange(ctx, cacheKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Prime replaces the cached history wholesale, used after a database reload.
func (c *Cache) Prime(ctx context.Context, chatID string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	bodies := make([]interface{}, 0, len(messages))
	for i := range messages {
		body, err := json.Marshal(&messages[i])
		if err != nil {
			return err
		}
		bodies = append(bodies, body)
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, cacheKey(chatID))
	pipe.RPush(ctx, cacheKey(chatID), bodies...)
	pipe.Expire(ctx, cacheKey(chatID), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) Drop(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, cacheKey(chatID)).Err()
}
