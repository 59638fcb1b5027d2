package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound means the state value was never issued or already consumed.
var ErrStateNotFound = errors.New("oauth state not found")

// Store keeps the provider-opaque state of an in-flight OAuth login: a random
// state value mapped to the post-login redirect target. Single-use.
type Store interface {
	Create(ctx context.Context, nextURL string) (state string, err error)
	Consume(ctx context.Context, state string) (nextURL string, err error)
}

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a Redis-backed state store. Entries expire after ttl so
// abandoned login attempts clean themselves up.
func New(rdb *redis.Client, ttl time.Duration) Store {
	return &redisStore{rdb: rdb, ttl: ttl}
}

func key(state string) string { return fmt.Sprintf("oauthstate:%s", state) }

func (s *redisStore) Create(ctx context.Context, nextURL string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	if err := s.rdb.Set(ctx, key(state), nextURL, s.ttl).Err(); err != nil {
		return "", err
	}
	return state, nil
}

func (s *redisStore) Consume(ctx context.Context, state string) (string, error) {
	nextURL, err := s.rdb.GetDel(ctx, key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return nextURL, nil
}
