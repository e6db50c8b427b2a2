package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Hit is the state of a bucket right after an increment.
type Hit struct {
	Count   int64
	ResetAt time.Time
}

// Counter increments fixed-window buckets. Incr must be atomic per key: two
// concurrent increments of a fresh key yield counts 1 and 2.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (Hit, error)
}

type bucket struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter keeps buckets in process. Expired buckets are replaced on
// the next hit and evicted by Sweep.
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket), now: time.Now}
}

// WithClock replaces the time source. It is meant for tests.
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (Hit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		c.buckets[key] = b
	}
	b.count++

	return Hit{Count: b.count, ResetAt: b.resetAt}, nil
}

// Sweep evicts buckets whose window has closed.
func (c *MemoryCounter) Sweep(_ context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, b := range c.buckets {
		if !now.Before(b.resetAt) {
			delete(c.buckets, key)
			evicted++
		}
	}
	return evicted, nil
}

// Len returns the number of live buckets.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}
