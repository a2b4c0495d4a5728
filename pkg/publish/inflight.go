package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InFlight is the single-writer-per-aggregate guard: at most one publish
// invocation per post may hold the marker at a time.
type InFlight interface {
	Acquire(ctx context.Context, postID string) (bool, error)
	Release(ctx context.Context, postID string) error
	Active(ctx context.Context, postID string) (bool, error)
}

const inflightPrefix = "publish:inflight:"

// RedisInFlight backs the marker with a TTL'd redis key so a crashed
// coordinator cannot wedge a post forever.
type RedisInFlight struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisInFlight(client *redis.Client, ttl time.Duration) *RedisInFlight {
	return &RedisInFlight{client: client, ttl: ttl}
}

func (f *RedisInFlight) Acquire(ctx context.Context, postID string) (bool, error) {
	ok, err := f.client.SetNX(ctx, inflightPrefix+postID, time.Now().UTC().Format(time.RFC3339), f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring publish marker: %w", err)
	}
	return ok, nil
}

func (f *RedisInFlight) Release(ctx context.Context, postID string) error {
	return f.client.Del(ctx, inflightPrefix+postID).Err()
}

func (f *RedisInFlight) Active(ctx context.Context, postID string) (bool, error) {
	n, err := f.client.Exists(ctx, inflightPrefix+postID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
