package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeTTL outlives the retry window of both providers.
const DedupeTTL = 72 * time.Hour

type Deduper interface {
	// Claim reports false when key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: DedupeTTL}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}
