package protect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ErrRateLimited is returned by a Limiter when the identity has used up its
// budget for the current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// DefaultCapacity is the number of distinct identities tracked in memory.
const DefaultCapacity = 500

// DefaultSweepInterval is used by Run when given a non-positive interval.
const DefaultSweepInterval = time.Minute

// Decision describes the state of an identity's window after a check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Window    time.Duration
}

// Limiter counts requests per identity in fixed windows.
type Limiter interface {
	// Check records one request for identity. It returns ErrRateLimited when
	// the identity already made limit requests in the current window.
	Check(ctx context.Context, identity string, limit int, window time.Duration) (Decision, error)
}

type windowEntry struct {
	count   int
	expires time.Time
}

// MemoryLimiter is a Limiter backed by a bounded LRU table. When more than
// capacity identities are active the least recently seen are evicted early,
// which forgets their counts.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, windowEntry]
	now     func() time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates an in-process limiter tracking up to capacity
// identities.
func NewMemoryLimiter(capacity int, opts ...MemoryOption) (*MemoryLimiter, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := simplelru.NewLRU[string, windowEntry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create rate table: %w", err)
	}
	l := &MemoryLimiter{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check implements Limiter. The read, compare and increment happen under one
// lock so concurrent requests from the same identity cannot over-admit.
func (l *MemoryLimiter) Check(_ context.Context, identity string, limit int, window time.Duration) (Decision, error) {
	d := Decision{Limit: limit, Window: window}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	count := 0
	if e, ok := l.entries.Get(identity); ok {
		if now.Before(e.expires) {
			count = e.count
		} else {
			l.entries.Remove(identity)
		}
	}

	if count >= limit {
		return d, ErrRateLimited
	}

	count++
	l.entries.Add(identity, windowEntry{count: count, expires: now.Add(window)})

	d.Allowed = true
	d.Remaining = limit - count
	return d, nil
}

// Sweep evicts expired entries and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for _, key := range l.entries.Keys() {
		if e, ok := l.entries.Peek(key); ok && !now.Before(e.expires) {
			l.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
