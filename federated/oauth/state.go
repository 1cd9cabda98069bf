package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStateNotFound         = errors.New("oauth state not found or already used")
	ErrStateStoreUnavailable = errors.New("oauth state store unavailable")
)

// StateStore keeps PKCE verifiers keyed by the OAuth state parameter.
type StateStore interface {
	Save(ctx context.Context, state, verifier string, ttl time.Duration) error
	// Take returns the verifier and removes it. A second Take fails.
	Take(ctx context.Context, state string) (string, error)
}

// RedisStateStore stores state in Redis with a TTL.
type RedisStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "ac:oauth"
	}
	return &RedisStateStore{redis: client, prefix: prefix}
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + ":" + state
}

func (s *RedisStateStore) Save(ctx context.Context, state, verifier string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(state), verifier, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStateStore) Take(ctx context.Context, state string) (string, error) {
	verifier, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}
	return verifier, nil
}
