package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// RateLimiter delays dispatch so external channel limits are respected per
// (owner, channel). Delaying is the coordinator's job; publishers never
// silently drop calls.
type RateLimiter interface {
	Wait(ctx context.Context, ownerID string, ch models.Channel) error
}

// RedisRateLimiter counts calls in fixed windows keyed by
// (owner, channel). When the window is full it sleeps until the window
// expires and tries again.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func (l *RedisRateLimiter) Wait(ctx context.Context, ownerID string, ch models.Channel) error {
	if l.limit <= 0 {
		return nil
	}
	key := fmt.Sprintf("publish:rate:%s:%s", ownerID, ch)

	for {
		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("rate limit check: %w", err)
		}
		if count == 1 {
			if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
				return fmt.Errorf("rate limit expiry: %w", err)
			}
		}
		if count <= int64(l.limit) {
			return nil
		}

		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = l.window
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl):
		}
	}
}

// NopRateLimiter disables throttling; used in tests.
type NopRateLimiter struct{}

func (NopRateLimiter) Wait(ctx context.Context, ownerID string, ch models.Channel) error {
	return nil
}
