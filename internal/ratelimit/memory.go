package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Turn traffic is bursty: a user repeats a misheard command two or three
// times in quick succession, then goes quiet. MemoryLimiter models that with
// one token bucket per key; the burst capacity absorbs the repeats and the
// refill rate caps a runaway client replaying turns in a loop.
//
// Buckets live in process memory. A sweep evicts keys that have gone idle so
// one-off conversations don't accumulate.
type MemoryLimiter struct {
	perSecond float64
	capacity  float64

	mu      sync.Mutex
	buckets map[string]*bucket

	closeOnce sync.Once
	closed    chan struct{}
}

// bucket tracks the token level for one key. The level is refilled lazily on
// access; refilled records when that last happened.
type bucket struct {
	level    float64
	refilled time.Time
}

const (
	sweepInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// NewMemoryLimiter creates a limiter allowing rate turns per second per key
// with bursts up to burst. Call Close to stop the idle-bucket sweep.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		perSecond: rate,
		capacity:  float64(burst),
		buckets:   make(map[string]*bucket),
		closed:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token from the bucket for key, creating a full bucket on
// first sight. Returns false when the bucket is empty.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{level: m.capacity, refilled: now}
		m.buckets[key] = b
	} else {
		b.level = min(m.capacity, b.level+now.Sub(b.refilled).Seconds()*m.perSecond)
		b.refilled = now
	}

	if b.level < 1 {
		return false, nil
	}
	b.level--
	return true, nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

// evictIdle drops buckets not touched since the eviction window. An evicted
// key starts over with a full bucket, which is the right behavior for a
// conversation resuming after a long pause.
func (m *MemoryLimiter) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, b := range m.buckets {
		if now.Sub(b.refilled) > idleEviction {
			delete(m.buckets, key)
		}
	}
}
