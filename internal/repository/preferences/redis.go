package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"groupchat/internal/service/redis"
)

const DefaultRedisKey = "groupchat:preferences"

type (
	// kv is the subset of redis.RedisService the store needs.
	kv interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
	}

	RedisStore struct {
		kv  kv
		key string
	}
)

func NewRedisStore(rs *redis.RedisService, key string) *RedisStore {
	return newRedisStore(rs, key)
}

func newRedisStore(kv kv, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{kv: kv, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (*Preferences, error) {
	v, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, redis.ErrNotFound) {
		return &Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preferences: get %s: %w", s.key, err)
	}

	var p Preferences
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return nil, fmt.Errorf("preferences: decode %s: %w", s.key, err)
	}
	return &p, nil
}

func (s *RedisStore) Save(ctx context.Context, p *Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, data, 0)
}
