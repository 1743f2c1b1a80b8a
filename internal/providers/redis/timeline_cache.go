package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"client/internal/app/message"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("redis unavailable")

// TimelineCache stores the last confirmed timeline of each user as JSON.
type TimelineCache struct {
	provider *RedisProvider
}

func NewTimelineCache(provider *RedisProvider) *TimelineCache {
	return &TimelineCache{provider: provider}
}

func timelineKey(userID string) string {
	return "timeline:user:" + userID
}

// Load returns nil without error when no snapshot is stored.
func (c *TimelineCache) Load(ctx context.Context, userID string) ([]message.Message, error) {
	if !c.provider.Connected() {
		return nil, ErrUnavailable
	}
	data, err := c.provider.Get(ctx, timelineKey(userID))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline snapshot: %w", err)
	}

	var msgs []message.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode timeline snapshot: %w", err)
	}
	return msgs, nil
}

// Save replaces the snapshot. An empty timeline deletes it.
func (c *TimelineCache) Save(ctx context.Context, userID string, msgs []message.Message) error {
	if !c.provider.Connected() {
		return ErrUnavailable
	}
	if len(msgs) == 0 {
		if err := c.provider.Del(ctx, timelineKey(userID)); err != nil {
			return fmt.Errorf("failed to delete timeline snapshot: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode timeline snapshot: %w", err)
	}
	if err := c.provider.Set(ctx, timelineKey(userID), data); err != nil {
		return fmt.Errorf("failed to save timeline snapshot: %w", err)
	}
	return nil
}
