package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/advisorhub/retentionservice/internal/domain"
)

// ErrMiss is returned when a key is not in the cache
var ErrMiss = errors.New("cache miss")

// Cache represents a Redis cache implementation
type Cache struct {
	client *redis.Client
}

// NewCache creates a new Redis cache instance
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Set sets a key-value pair in the cache
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value from the cache
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return fmt.Errorf("failed to get key: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

// Delete removes a key from the cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// ScoreCache caches the latest health score per client. Scores are
// superseded, never versioned, so the cache only ever holds one value per
// client and is overwritten on every recomputation.
type ScoreCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewScoreCache wraps a Cache with health score semantics
func NewScoreCache(cache *Cache, ttl time.Duration) *ScoreCache {
	return &ScoreCache{cache: cache, ttl: ttl}
}

func scoreKey(clientID uuid.UUID) string {
	return "health:" + clientID.String()
}

// SetScore stores the latest score for a client
func (s *ScoreCache) SetScore(ctx context.Context, score domain.HealthScore) error {
	return s.cache.Set(ctx, scoreKey(score.ClientID), score, s.ttl)
}

// GetScore retrieves the cached score for a client, ErrMiss when absent
func (s *ScoreCache) GetScore(ctx context.Context, clientID uuid.UUID) (domain.HealthScore, error) {
	var score domain.HealthScore
	if err := s.cache.Get(ctx, scoreKey(clientID), &score); err != nil {
		return domain.HealthScore{}, err
	}
	return score, nil
}

// InvalidateScore drops the cached score for a client
func (s *ScoreCache) InvalidateScore(ctx context.Context, clientID uuid.UUID) error {
	return s.cache.Delete(ctx, scoreKey(clientID))
}
