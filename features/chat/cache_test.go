package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"weft/features/chat"
)

func newTestCache(t *testing.T, ttl time.Duration) (*chat.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return chat.NewCache(client, ttl), mr
}

func TestCache_AppendRefreshesTTL(t *testing.T) {
	cache, mr := newTestCache(t, 24*time.Hour)
	ctx := context.Background()

	first := &chat.Message{ID: "m1", ChatID: "chat-1", Role: chat.RoleUser, Content: "what broke?"}
	assert.NoError(t, cache.Append(ctx, first))
	assert.Equal(t, 24*time.Hour, mr.TTL("chat:chat-1"))

	// Half the window later the entry has aged; the next write slides the
	// expiry back out to a full window from that write.
	mr.FastForward(12 * time.Hour)
	assert.Equal(t, 12*time.Hour, mr.TTL("chat:chat-1"))

	second := &chat.Message{ID: "m2", ChatID: "chat-1", Role: chat.RoleAssistant, Content: "the deploy"}
	assert.NoError(t, cache.Append(ctx, second))
	assert.Equal(t, 24*time.Hour, mr.TTL("chat:chat-1"))

	msgs, err := cache.Messages(ctx, "chat-1")
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestCache_EntryExpiresAfterIdleWindow(t *testing.T) {
	cache, mr := newTestCache(t, 24*time.Hour)
	ctx := context.Background()

	assert.NoError(t, cache.Append(ctx, &chat.Message{ID: "m1", ChatID: "chat-1", Role: chat.RoleUser, Content: "hi"}))

	mr.FastForward(25 * time.Hour)

	msgs, err := cache.Messages(ctx, "chat-1")
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCache_PrimeReplacesAndSetsTTL(t *testing.T) {
	cache, mr := newTestCache(t, 24*time.Hour)
	ctx := context.Background()

	assert.NoError(t, cache.Append(ctx, &chat.Message{ID: "stale", ChatID: "chat-1", Role: chat.RoleUser, Content: "old"}))
	mr.FastForward(12 * time.Hour)

	fresh := []chat.Message{
		{ID: "m1", ChatID: "chat-1", Role: chat.RoleUser, Content: "q"},
		{ID: "m2", ChatID: "chat-1", Role: chat.RoleAssistant, Content: "a"},
	}
	assert.NoError(t, cache.Prime(ctx, "chat-1", fresh))
	assert.Equal(t, 24*time.Hour, mr.TTL("chat:chat-1"))

	msgs, err := cache.Messages(ctx, "chat-1")
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestCache_Drop(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	assert.NoError(t, cache.Append(ctx, &chat.Message{ID: "m1", ChatID: "chat-1", Role: chat.RoleUser, Content: "hi"}))
	assert.NoError(t, cache.Drop(ctx, "chat-1"))

	msgs, err := cache.Messages(ctx, "chat-1")
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}
