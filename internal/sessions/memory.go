package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/squabble/internal/store"
)

// MemoryStore is the process-local store.SessionStore. Entries expire after ttl of
// inactivity and the least recently updated entry is evicted beyond maxEntries.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*store.SessionData
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*store.SessionData),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*store.SessionData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok || m.expired(s) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, d *store.SessionData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if d.Created.IsZero() {
		d.Created = now
	}
	d.Updated = now
	cp := *d

	if _, exists := m.sessions[d.Key]; !exists && m.maxEntries > 0 && len(m.sessions) >= m.maxEntries {
		m.evictOldest()
	}
	m.sessions[d.Key] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, s := range m.sessions {
		if s.Updated.Before(before) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, including expired ones not yet pruned.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(s *store.SessionData) bool {
	return m.ttl > 0 && m.now().Sub(s.Updated) > m.ttl
}

// evictOldest must be called with mu held.
func (m *MemoryStore) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, s := range m.sessions {
		if oldestKey == "" || s.Updated.Before(oldest) {
			oldestKey, oldest = k, s.Updated
		}
	}
	delete(m.sessions, oldestKey)
}
