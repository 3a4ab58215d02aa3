package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/redis/go-redis/v9"
)

// Redis is a ResultCache shared between processes through a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr. A zero ttl keeps entries until Redis evicts them.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the reviews stored under key; a missing key is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) ([]models.Review, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var reviews []models.Review
	if err := json.Unmarshal(v, &reviews); err != nil {
		return nil, false, fmt.Errorf("decode cached reviews: %w", err)
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, true, nil
}

// Set stores reviews under key as JSON with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, reviews []models.Review) error {
	if reviews == nil {
		reviews = []models.Review{}
	}
	b, err := json.Marshal(reviews)
	if err != nil {
		return fmt.Errorf("encode reviews: %w", err)
	}
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
