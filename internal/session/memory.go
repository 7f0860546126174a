package session

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

// CacheStats reports MemoryStore activity.
type CacheStats struct {
	Items     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// MemoryStore keeps the most recently used sessions in an LRU. With a
// backing store it is a write-through cache; without one, evicted sessions
// are gone.
type MemoryStore struct {
	lru     *lru.Cache[string, models.SessionState]
	backing Store
	logger  *logging.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewMemoryStore creates a store holding at most maxSessions sessions in
// memory. backing may be nil.
func NewMemoryStore(maxSessions int, backing Store) (*MemoryStore, error) {
	if maxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", maxSessions)
	}
	m := &MemoryStore{
		backing: backing,
		logger:  logging.GetLogger("session.memory"),
	}
	cache, err := lru.NewWithEvict[string, models.SessionState](maxSessions, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	m.lru = cache
	return m, nil
}

func (m *MemoryStore) onEvict(id string, _ models.SessionState) {
	m.evictions.Add(1)
	if m.backing == nil {
		m.logger.Warn("Session %s dropped from memory", id)
		return
	}
	m.logger.Debug("Session %s dropped from cache", id)
}

// Get returns a deep copy of the stored session.
func (m *MemoryStore) Get(ctx context.Context, id string) (models.SessionState, error) {
	if s, ok := m.lru.Get(id); ok {
		m.hits.Add(1)
		return s.Clone(), nil
	}
	m.misses.Add(1)

	if m.backing == nil {
		return models.SessionState{}, models.NewSessionNotFound(id)
	}
	s, err := m.backing.Get(ctx, id)
	if err != nil {
		return models.SessionState{}, err
	}
	m.lru.Add(id, s.Clone())
	return s, nil
}

// Put stores a deep copy of s, writing through to the backing store first.
func (m *MemoryStore) Put(ctx context.Context, s models.SessionState) error {
	if s.ID == "" {
		return models.NewValidationError("session id is required")
	}
	if m.backing != nil {
		if err := m.backing.Put(ctx, s); err != nil {
			return err
		}
	}
	m.lru.Add(s.ID, s.Clone())
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.lru.Remove(id)
	if m.backing != nil {
		return m.backing.Delete(ctx, id)
	}
	return nil
}

// Stats returns cache counters.
func (m *MemoryStore) Stats() CacheStats {
	return CacheStats{
		Items:     m.lru.Len(),
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}
