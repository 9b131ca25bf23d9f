package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// TokenBucket is a keyed token-bucket rate limiter. Each key starts with a
// full bucket and regains one token per refillRate.
type TokenBucket struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a limiter. A nil clock means the real clock.
func NewTokenBucket(capacity int, refillRate time.Duration, clk clockwork.Clock) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &TokenBucket{
		clock:      clk,
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire takes one token for key. It fails fast with a *RateLimitError
// carrying the wait until the next token instead of blocking.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if refills := int(now.Sub(b.lastRefill) / tb.refillRate); refills > 0 {
		b.tokens = min(b.tokens+refills, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(refills) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return nil, &RateLimitError{
			Key:        key,
			RetryAfter: b.lastRefill.Add(tb.refillRate).Sub(now),
		}
	}
	b.tokens--

	// tokens come back with time, not on release
	return func() {}, nil
}

// RateLimitError is returned when a key has no tokens left.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
