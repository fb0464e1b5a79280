package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked source keys so a sender rotating
// spoofed addresses cannot grow the table without bound.
const maxTrackedKeys = 10000

type window struct {
	resetAt time.Time
	count   int64
}

// MemoryStore keeps fixed-window counters in process memory.
// Limits are per instance. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	maxKeys int
}

// NewMemoryStore creates an empty in-process counter table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
		maxKeys: maxTrackedKeys,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Incr(_ context.Context, key string, win time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		if !ok && len(s.windows) >= s.maxKeys {
			s.prune(now)
		}
		w = &window{resetAt: now.Add(win)}
		s.windows[key] = w
	}

	w.count++
	return w.count, w.resetAt, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// prune drops expired windows. If the table is still full it evicts the
// window closest to its reset, which loses the least remaining state.
// Caller holds s.mu.
func (s *MemoryStore) prune(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
	for len(s.windows) >= s.maxKeys {
		var (
			oldestKey string
			oldest    time.Time
		)
		for k, w := range s.windows {
			if oldestKey == "" || w.resetAt.Before(oldest) {
				oldestKey, oldest = k, w.resetAt
			}
		}
		delete(s.windows, oldestKey)
	}
}
