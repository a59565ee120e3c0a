package challenge

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Suitable for tests and
// single-instance development; expiry is checked lazily on Take.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	ch        Challenge
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, ch *Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ch.ID] = memoryEntry{ch: *ch, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, id)
	if s.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	ch := e.ch
	return &ch, nil
}
