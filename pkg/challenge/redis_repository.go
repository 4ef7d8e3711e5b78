package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "devicelimit:challenge:"

// RedisRepository stores each challenge as a JSON string. Keys outlive the window by a
// grace period so that an expired challenge is still visible to the gate, which purges it.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, window time.Duration) *RedisRepository {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisRepository{client: client, ttl: 2 * window}
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

func (r *RedisRepository) Get(ctx context.Context, userID string) (PendingChallenge, error) {
	raw, err := r.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingChallenge{}, ErrNotFound
	}
	if err != nil {
		return PendingChallenge{}, fmt.Errorf("failed to read challenge: %w", err)
	}

	var c PendingChallenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return PendingChallenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return c, nil
}

func (r *RedisRepository) Put(ctx context.Context, userID string, c PendingChallenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// DeleteAll scans for the key prefix instead of flushing the database.
func (r *RedisRepository) DeleteAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan challenges: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete challenges: %w", err)
	}
	return nil
}
