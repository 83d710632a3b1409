package conversation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ContextCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewContextCache(client)
}

func TestContextCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	id := NewConversationID()
	window := []ChatMessage{
		{Role: ChatRoleUser, Content: "my cycle is irregular"},
		{Role: ChatRoleAssistant, Content: "tracking helps"},
	}

	require.NoError(t, cache.Save(context.Background(), id, window))

	loaded, ok, err := cache.Load(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, window, loaded)
}

func TestContextCacheMiss(t *testing.T) {
	cache := newTestCache(t)

	loaded, ok, err := cache.Load(context.Background(), NewConversationID())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, loaded)
}

func TestContextCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	id := NewConversationID()

	require.NoError(t, cache.Save(context.Background(), id, []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}))
	require.NoError(t, cache.Invalidate(context.Background(), id))

	_, ok, err := cache.Load(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContextCacheKeysAreScopedPerConversation(t *testing.T) {
	cache := newTestCache(t)
	first := NewConversationID()
	second := NewConversationID()

	require.NoError(t, cache.Save(context.Background(), first, []ChatMessage{{Role: ChatRoleUser, Content: "one"}}))
	require.NoError(t, cache.Save(context.Background(), second, []ChatMessage{{Role: ChatRoleUser, Content: "two"}}))

	loaded, ok, err := cache.Load(context.Background(), first)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded, 1)
	assert.Equal(t, "one", loaded[0].Content)
}

func TestContextCacheEntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewContextCache(client)
	id := NewConversationID()

	require.NoError(t, cache.Save(context.Background(), id, []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}))

	mr.FastForward(contextCacheTTL + 1)

	_, ok, err := cache.Load(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}
