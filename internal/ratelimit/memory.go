package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultMaxKeys = 10000

type window struct {
	count int
	end   time.Time
}

// MemoryLimiter keeps counters in process. Suitable for a single instance.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

type MemoryOption func(*MemoryLimiter)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// WithMaxKeys bounds the number of live keys. At the bound the window closest
// to reset is evicted.
func WithMaxKeys(n int) MemoryOption {
	return func(m *MemoryLimiter) { m.maxKeys = n }
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		now:     time.Now,
		windows: make(map[string]*window),
		maxKeys: defaultMaxKeys,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, d time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.end) {
		if !ok && len(m.windows) >= m.maxKeys {
			m.gc(now)
			if len(m.windows) >= m.maxKeys {
				m.evictOldest()
			}
		}
		w = &window{end: now.Add(d)}
		m.windows[key] = w
	}

	if w.count >= limit {
		return Decision{Allowed: false, Limit: limit, ResetAt: w.end}, nil
	}
	w.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.end}, nil
}

func (m *MemoryLimiter) gc(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}
}

func (m *MemoryLimiter) evictOldest() {
	var (
		oldest string
		end    time.Time
	)
	for key, w := range m.windows {
		if oldest == "" || w.end.Before(end) {
			oldest, end = key, w.end
		}
	}
	delete(m.windows, oldest)
}
