package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "job:"

type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(addr, password string, ttl time.Duration) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisTracker(client, ttl), nil
}

func newRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

func (t *RedisTracker) SetStatus(ctx context.Context, id string, status Status) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, jobKeyPrefix+id, data, t.ttl).Err()
}

func (t *RedisTracker) GetStatus(ctx context.Context, id string) (*Status, error) {
	data, err := t.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &status, nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
