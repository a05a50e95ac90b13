package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const memoryEntryTTL = 24 * time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type memoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*bucket
}

// NewMemory returns an in-process Limiter. Each key gets a token bucket that
// holds limit tokens and refills one token every window/limit.
func NewMemory(now func() time.Time) Limiter {
	if now == nil {
		now = time.Now
	}
	return &memoryLimiter{
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window <= 0 {
		window = time.Second
	}

	now := m.now()
	interval := window / time.Duration(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gc(now)

	b, ok := m.buckets[key]
	if !ok || b.limiter.Burst() != limit {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(interval), limit)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	resetAt := now
	if tokens < 1 {
		resetAt = now.Add(time.Duration((1 - tokens) * float64(interval)))
	}

	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(int(tokens), 0),
		ResetAt:   resetAt,
	}, nil
}

func (m *memoryLimiter) gc(now time.Time) {
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > memoryEntryTTL {
			delete(m.buckets, key)
		}
	}
}
