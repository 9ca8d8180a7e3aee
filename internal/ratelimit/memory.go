package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. It mirrors the
// redis semantics (fixed deadline set on first touch, lazy expiry) so
// the limiter behaves identically in tests and store-less development.
// Not suitable for multi-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	count    int64
	deadline time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !ent.deadline.After(now) {
		ent = &memoryEntry{deadline: now.Add(window)}
		s.entries[key] = ent
	}

	ent.count++
	return ent.count, ent.deadline.Sub(now), nil
}
