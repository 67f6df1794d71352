package cookiestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct{ rdb *redis.Client }

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

// DialRedis connects to REDIS_URL (redis:// or rediss://) and pings it.
func DialRedis(ctx context.Context, redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("cookiestore: REDIS_URL is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cookiestore: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cookiestore: redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Close() error { return s.rdb.Close() }

func (s *Redis) key(user string) string { return "liru:cookies:" + normalizeUser(user) }

func (s *Redis) Load(ctx context.Context, user string) (map[string]string, error) {
	raw, err := s.rdb.Get(ctx, s.key(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cookies map[string]string
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("cookiestore: decode %s: %w", s.key(user), err)
	}
	return cookies, nil
}

func (s *Redis) Save(ctx context.Context, user string, cookies map[string]string, ttl time.Duration) error {
	if normalizeUser(user) == "" || len(cookies) == 0 {
		return nil
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, s.key(user), raw, ttl).Err()
}

func (s *Redis) Forget(ctx context.Context, user string) error {
	return s.rdb.Del(ctx, s.key(user)).Err()
}
