package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
)

// MemoryStore keeps sessions in process memory with a TTL.
type MemoryStore struct {
	cache *cache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose entries expire after ttl and are
// purged every cleanup interval.
func NewMemoryStore(ttl, cleanup time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, cleanup)}
}

// Get returns a copy of the session, or ErrNotFound if it is absent or expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	x, found := m.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	return x.(*State).Clone(), nil
}

// Save stores a copy of s and restarts its TTL.
func (m *MemoryStore) Save(_ context.Context, s *State) error {
	m.cache.Set(s.ID, s.Clone(), cache.DefaultExpiration)
	return nil
}

// Delete removes the session. Deleting an absent id is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of unexpired sessions.
func (m *MemoryStore) Len() int {
	return len(m.cache.Items())
}

// Collector exposes the unexpired session count as designd_sessions_active.
func (m *MemoryStore) Collector() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "designd",
		Name:      "sessions_active",
		Help:      "Number of sessions held in the in-memory checkpoint store",
	}, func() float64 {
		return float64(m.Len())
	})
}
