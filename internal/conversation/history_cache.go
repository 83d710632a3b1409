package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const contextCacheTTL = 12 * time.Hour

// ContextCache keeps the windowed AI context for active conversations in
// Redis so follow-up turns don't rebuild it from the full store history.
// It is strictly an optimization: a miss or Redis failure falls back to the
// store, never to an error.
type ContextCache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewContextCache builds a cache over the given Redis client.
func NewContextCache(client *redis.Client) *ContextCache {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &ContextCache{
		redis:  client,
		ttl:    contextCacheTTL,
		tracer: otel.Tracer("lunara.internal.conversation.cache"),
	}
}

func contextKey(id ConversationID) string {
	return fmt.Sprintf("ai_context:%s", id)
}

// Save stores the windowed context for a conversation.
func (c *ContextCache) Save(ctx context.Context, id ConversationID, history []ChatMessage) error {
	ctx, span := c.tracer.Start(ctx, "conversation.cache_save")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal context: %w", err)
	}
	if err := c.redis.Set(ctx, contextKey(id), data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to cache context: %w", err)
	}
	return nil
}

// Load returns the cached context and whether it was present.
func (c *ContextCache) Load(ctx context.Context, id ConversationID) ([]ChatMessage, bool, error) {
	ctx, span := c.tracer.Start(ctx, "conversation.cache_load")
	defer span.End()

	data, err := c.redis.Get(ctx, contextKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("conversation: failed to load cached context: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("conversation: failed to decode cached context: %w", err)
	}
	return history, true, nil
}

// Invalidate drops the cached context, e.g. after an edit rewrites history.
func (c *ContextCache) Invalidate(ctx context.Context, id ConversationID) error {
	ctx, span := c.tracer.Start(ctx, "conversation.cache_invalidate")
	defer span.End()

	if err := c.redis.Del(ctx, contextKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to invalidate cached context: %w", err)
	}
	return nil
}
