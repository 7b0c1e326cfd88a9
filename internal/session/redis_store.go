package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+tokenID, userID, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, tokenID string) (string, error) {
	userID, err := s.client.Get(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenID string) error {
	return s.client.Del(ctx, keyPrefix+tokenID).Err()
}
