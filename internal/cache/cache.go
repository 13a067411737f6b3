package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

const (
	keyCurrent   = "broadcast:current"
	keyHealth    = "stream:health"
	keyAnalytics = "stream:analytics"
)

// Cache keeps the latest broadcast status and stream telemetry in Redis so
// other processes (restreamctl status, dashboards) can read them
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new cache instance. ttl bounds how long per-broadcast
// statuses are kept; zero keeps them forever.
func NewCache(host string, port int, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Name implements events.Publisher
func (c *Cache) Name() string {
	return "redis"
}

// Publish implements events.Publisher by recording the status carried by the event
func (c *Cache) Publish(ctx context.Context, event models.BroadcastEvent) error {
	return c.SetStatus(ctx, event.Status)
}

func statusKey(id string) string {
	return fmt.Sprintf("broadcast:status:%s", id)
}

// Broadcast status

// SetStatus stores the status under its ID and as the current broadcast
func (c *Cache) SetStatus(ctx context.Context, status models.BroadcastStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	pipe := c.client.TxPipeline()
	if status.ID != "" {
		pipe.Set(ctx, statusKey(status.ID), data, c.ttl)
	}
	pipe.Set(ctx, keyCurrent, data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}
	return nil
}

// GetStatus retrieves a broadcast status by ID. A miss returns nil, nil.
func (c *Cache) GetStatus(ctx context.Context, id string) (*models.BroadcastStatus, error) {
	var status models.BroadcastStatus
	found, err := c.getJSON(ctx, statusKey(id), &status)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}

// GetCurrent returns the most recently stored status, or Idle when nothing
// has been recorded yet
func (c *Cache) GetCurrent(ctx context.Context) (models.BroadcastStatus, error) {
	var status models.BroadcastStatus
	found, err := c.getJSON(ctx, keyCurrent, &status)
	if err != nil {
		return models.BroadcastStatus{}, err
	}
	if !found {
		return models.IdleStatus(), nil
	}
	return status, nil
}

// ClearCurrent marks the service idle after a handle is released
func (c *Cache) ClearCurrent(ctx context.Context) error {
	return c.client.Del(ctx, keyCurrent).Err()
}

// Telemetry

// SetHealth stores the latest stream health snapshot
func (c *Cache) SetHealth(ctx context.Context, health models.StreamHealth, ttl time.Duration) error {
	return c.SetWithJSON(ctx, keyHealth, health, ttl)
}

// GetHealth retrieves the latest stream health snapshot. A miss returns nil, nil.
func (c *Cache) GetHealth(ctx context.Context) (*models.StreamHealth, error) {
	var health models.StreamHealth
	found, err := c.getJSON(ctx, keyHealth, &health)
	if err != nil || !found {
		return nil, err
	}
	return &health, nil
}

// SetAnalytics stores the latest analytics summary
func (c *Cache) SetAnalytics(ctx context.Context, analytics models.StreamAnalytics, ttl time.Duration) error {
	return c.SetWithJSON(ctx, keyAnalytics, analytics, ttl)
}

// GetAnalytics retrieves the latest analytics summary. A miss returns nil, nil.
func (c *Cache) GetAnalytics(ctx context.Context) (*models.StreamAnalytics, error) {
	var analytics models.StreamAnalytics
	found, err := c.getJSON(ctx, keyAnalytics, &analytics)
	if err != nil || !found {
		return nil, err
	}
	return &analytics, nil
}

// Rate Limiting Operations

// CheckRateLimit checks if a rate limit has been exceeded
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheAccess("redis", false)
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	metrics.RecordCacheAccess("redis", true)

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Ping is the health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
