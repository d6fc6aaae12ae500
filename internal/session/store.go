package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store is a checkpoint store keyed by session ID.
// Every Save refreshes the session's TTL.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewStore builds the store selected by cfg.Store.
func NewStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Store, error) {
	ttl := cfg.TTL.Duration()
	if ttl <= 0 {
		ttl = time.Hour
	}

	switch strings.ToLower(cfg.Store) {
	case "", "memory":
		cleanup := cfg.CleanupInterval.Duration()
		if cleanup <= 0 {
			cleanup = 10 * time.Minute
		}
		return NewMemoryStore(ttl, cleanup), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis, ttl, logger)
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}
