package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"anonchat/internal/model"
)

// SnapshotCache keeps the ordered message list in Redis. A short-lived dirty
// marker set on every write keeps readers from repopulating the cache with a
// list that is about to change.
type SnapshotCache struct {
	client         redisv9.Cmdable
	prefix         string
	snapshotTTL    time.Duration
	dirtyMarkerTTL time.Duration
}

func NewSnapshotCache(client redisv9.Cmdable, prefix string, snapshotTTL, dirtyMarkerTTL time.Duration) *SnapshotCache {
	if prefix == "" {
		prefix = "anonchat"
	}
	if snapshotTTL <= 0 {
		snapshotTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &SnapshotCache{
		client:         client,
		prefix:         prefix,
		snapshotTTL:    snapshotTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *SnapshotCache) Get(ctx context.Context) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, c.snapshotKey()).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get snapshot failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached snapshot failed: %w", err)
	}
	return messages, true, nil
}

func (c *SnapshotCache) Set(ctx context.Context, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal snapshot cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.snapshotKey(), payload, c.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot failed: %w", err)
	}
	return nil
}

// Invalidate marks the snapshot dirty and drops it.
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	if err := c.client.Set(ctx, c.dirtyKey(), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	if err := c.client.Del(ctx, c.snapshotKey()).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot failed: %w", err)
	}
	return nil
}

func (c *SnapshotCache) IsDirty(ctx context.Context) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey()).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *SnapshotCache) snapshotKey() string {
	return c.prefix + ":messages:snapshot"
}

func (c *SnapshotCache) dirtyKey() string {
	return c.prefix + ":messages:dirty"
}
