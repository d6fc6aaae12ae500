package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// RedisStore keeps sessions as JSON values with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("redis session store connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", ttl))
	return newRedisStore(client, cfg.Prefix, ttl, logger), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Get loads and decodes the session, or returns ErrNotFound if the key is gone.
func (r *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// Save encodes s as JSON and writes it with the store TTL.
func (r *RedisStore) Save(ctx context.Context, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes the session key.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
