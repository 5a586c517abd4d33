package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Limits are per instance.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]counter)}
}

func (m *MemoryStore) Increment(_ context.Context, key string, resetAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || !c.resetAt.Equal(resetAt) {
		c = counter{resetAt: resetAt}
	}
	c.count++
	m.counters[key] = c
	return c.count, nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, c := range m.counters {
		if !now.Before(c.resetAt) {
			delete(m.counters, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

var _ Store = (*MemoryStore)(nil)
