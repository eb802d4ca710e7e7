package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccessToken is a short-lived upstream bearer token.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenStore caches the upstream access token between requests.
type TokenStore interface {
	Get(ctx context.Context) (AccessToken, bool)
	Set(ctx context.Context, token AccessToken) error
	Clear(ctx context.Context) error
}

type MemoryTokenStore struct {
	mu    sync.Mutex
	token AccessToken
	now   func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{now: time.Now}
}

func (s *MemoryTokenStore) Get(ctx context.Context) (AccessToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Value == "" || !s.now().Before(s.token.ExpiresAt) {
		return AccessToken{}, false
	}
	return s.token, true
}

func (s *MemoryTokenStore) Set(ctx context.Context, token AccessToken) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = AccessToken{}
	s.mu.Unlock()
	return nil
}

// RedisTokenStore shares one token between replicas. The key expires together
// with the token.
type RedisTokenStore struct {
	redis *redis.Client
	key   string
}

func NewRedisTokenStore(redisClient *redis.Client, scope string) *RedisTokenStore {
	return &RedisTokenStore{redis: redisClient, key: tokenKey(scope)}
}

func tokenKey(scope string) string {
	return fmt.Sprintf("gigachat:access_token:%s", scope)
}

func (s *RedisTokenStore) Get(ctx context.Context) (AccessToken, bool) {
	pipe := s.redis.Pipeline()
	valCmd := pipe.Get(ctx, s.key)
	ttlCmd := pipe.PTTL(ctx, s.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return AccessToken{}, false
	}

	val, err := valCmd.Result()
	if err != nil || val == "" {
		return AccessToken{}, false
	}
	ttl, err := ttlCmd.Result()
	if err != nil || ttl <= 0 {
		return AccessToken{}, false
	}

	return AccessToken{Value: val, ExpiresAt: time.Now().Add(ttl)}, true
}

func (s *RedisTokenStore) Set(ctx context.Context, token AccessToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return errors.New("access token already expired")
	}
	if err := s.redis.Set(ctx, s.key, token.Value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache access token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	return s.redis.Del(ctx, s.key).Err()
}
