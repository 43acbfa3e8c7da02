package httpx

import (
	"context"
	"sync"
	"time"
)

const memorySweepEvery = 5 * time.Minute

// memoryRateLimiter keeps fixed-window counters in process. Expired windows
// are swept lazily from Allow, so no goroutine outlives the limiter.
type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	now       func() time.Time
	nextSweep time.Time
}

type fixedWindow struct {
	hits    int64
	resetAt time.Time
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		windows:   make(map[string]*fixedWindow),
		now:       now,
		nextSweep: now().Add(memorySweepEvery),
	}
}

func (m *memoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return allowAll()
	}
	if window <= 0 {
		window = time.Minute
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !now.Before(m.nextSweep) {
		m.sweep(now)
	}
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	// rejected hits are not counted
	if w.hits < int64(limit) {
		w.hits++
		return decide(w.hits, limit, w.resetAt)
	}
	return decide(w.hits+1, limit, w.resetAt)
}

func (m *memoryRateLimiter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
	m.nextSweep = now.Add(memorySweepEvery)
}

func (m *memoryRateLimiter) Close() {}
