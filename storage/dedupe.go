package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper records applied command ids in Redis so a redelivered
// command is applied at most once across workers.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(id string) string {
	return "patch:" + id
}

// Add records the id if it does not already exist. It returns true when the
// id was newly added.
func (r *RedisDeduper) Add(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, dedupeKey(id), 1, r.ttl).Result()
}

// Remove forgets an id so the command may be applied again.
func (r *RedisDeduper) Remove(ctx context.Context, id string) error {
	return r.client.Del(ctx, dedupeKey(id)).Err()
}
