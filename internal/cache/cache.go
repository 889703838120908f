// Package cache provides the Redis snapshot cache and the per-target
// snapshot channel.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/config"
	"github.com/pinreview/backend/internal/models"
)

const (
	snapshotKeyPrefix = "snapshot:"
	channelPrefix     = "comments:"

	defaultTTL = 5 * time.Minute
)

// Cache defines the interface for snapshot caching and fan-out.
type Cache interface {
	// GetSnapshot returns the cached snapshot of a target. A miss, and any
	// cache error, reports false.
	GetSnapshot(ctx context.Context, targetID string) (*models.Snapshot, bool)

	// SetSnapshot caches a snapshot for the configured TTL.
	SetSnapshot(ctx context.Context, snap *models.Snapshot) error

	// Invalidate drops the cached snapshot of a target.
	Invalidate(ctx context.Context, targetID string) error

	// Publish sends a snapshot to every subscriber of its target.
	Publish(ctx context.Context, snap *models.Snapshot) error

	// Subscribe delivers the published snapshots of a target until ctx is
	// done.
	Subscribe(ctx context.Context, targetID string) (<-chan models.Snapshot, error)

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")
	return NewRedisCacheWithClient(client, cfg.SnapshotTTL, logger), nil
}

// NewRedisCacheWithClient wraps an existing client. A zero ttl uses the
// default.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// GetSnapshot retrieves a target's snapshot from cache.
func (c *RedisCache) GetSnapshot(ctx context.Context, targetID string) (*models.Snapshot, bool) {
	key := snapshotKeyPrefix + targetID

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("Failed to unmarshal cached snapshot", zap.Error(err))
		return nil, false
	}

	c.logger.Debug("Cache hit", zap.String("key", key))
	return &snap, true
}

// SetSnapshot stores a target's snapshot in cache.
func (c *RedisCache) SetSnapshot(ctx context.Context, snap *models.Snapshot) error {
	key := snapshotKeyPrefix + snap.TargetID

	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("Failed to marshal snapshot for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached snapshot", zap.String("key", key), zap.Int("comments", len(snap.Comments)))
	return nil
}

// Invalidate removes a target's snapshot from cache.
func (c *RedisCache) Invalidate(ctx context.Context, targetID string) error {
	key := snapshotKeyPrefix + targetID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Failed to delete from cache", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Publish sends a snapshot on the target's channel.
func (c *RedisCache) Publish(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.client.Publish(ctx, channelPrefix+snap.TargetID, data).Err(); err != nil {
		c.logger.Warn("Failed to publish snapshot", zap.String("target_id", snap.TargetID), zap.Error(err))
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Subscribe listens on the target's channel. The subscription is confirmed
// before Subscribe returns, so nothing published afterwards is missed.
func (c *RedisCache) Subscribe(ctx context.Context, targetID string) (<-chan models.Snapshot, error) {
	channel := channelPrefix + targetID
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan models.Snapshot)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var snap models.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					c.logger.Warn("Dropping malformed snapshot", zap.String("channel", channel), zap.Error(err))
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}
