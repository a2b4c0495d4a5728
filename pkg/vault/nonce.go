package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// NonceStore owns the single-use, time-boxed OAuth state nonces. Consuming
// a nonce removes it atomically so a replayed callback can never pass.
type NonceStore interface {
	Issue(ctx context.Context, state, ownerID string, ch models.Channel, ttl time.Duration) error
	Consume(ctx context.Context, state string) (ownerID string, ch models.Channel, err error)
}

const noncePrefix = "oauth:state:"

type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Issue(ctx context.Context, state, ownerID string, ch models.Channel, ttl time.Duration) error {
	value := ownerID + "|" + string(ch)
	ok, err := s.client.SetNX(ctx, noncePrefix+state, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing oauth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("oauth state collision for %s", state)
	}
	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, state string) (string, models.Channel, error) {
	value, err := s.client.GetDel(ctx, noncePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrCsrfStateMismatch
	}
	if err != nil {
		return "", "", fmt.Errorf("consuming oauth state: %w", err)
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrCsrfStateMismatch
	}
	return parts[0], models.Channel(parts[1]), nil
}
