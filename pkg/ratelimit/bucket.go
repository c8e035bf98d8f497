// Package ratelimit provides the rate limiting primitives used by the
// superserver runtimes.
//
// It offers two primitives:
//   - WindowLimiter: a per-source fixed-window request counter with lazy
//     cleanup. Datagram servers consult it once per received packet.
//   - Bucket: a single token bucket. Stream handlers use it to pace output
//     (e.g. chargen lines) and it honours context cancellation while waiting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket that refills continuously at a fixed rate.
// It is safe for concurrent use.
type Bucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewBucket creates a bucket refilling at rate tokens per second and holding
// at most burst tokens. The bucket starts full; a non-positive burst is one.
func NewBucket(rate float64, burst int) *Bucket {
	capacity := float64(max(burst, 1))
	b := &Bucket{
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		now:      time.Now,
	}
	b.last = b.now()
	return b
}

// advance credits the tokens earned since the last update. b.mu must be held.
func (b *Bucket) advance() {
	now := b.now()
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// take consumes a token if one is available. Otherwise it returns how long
// until the next token is earned.
func (b *Bucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second)), false
}

// tryTake consumes a token without blocking and reports whether one was
// available. A bucket with a non-positive rate always succeeds.
func (b *Bucket) tryTake() bool {
	if b.rate <= 0 {
		return true
	}
	_, ok := b.take()
	return ok
}

// Wait blocks until a token is available or ctx is done. A bucket with a
// non-positive rate never blocks.
func (b *Bucket) Wait(ctx context.Context) error {
	if b.rate <= 0 {
		return ctx.Err()
	}
	for {
		delay, ok := b.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// available returns the tokens currently available.
func (b *Bucket) available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.tokens
}
