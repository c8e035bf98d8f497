package ratelimit

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// Default window limiter values.
const (
	DefaultCleanupInterval = 1 * time.Minute
	// StaleGrace is how long past the end of its window an entry survives
	// before a sweep removes it.
	StaleGrace = 10 * time.Second
)

// Limit is a fixed-window request budget for a single source.
// A zero MaxRequests means unlimited.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Unlimited reports whether the limit lets every request through.
func (l Limit) Unlimited() bool {
	return l.MaxRequests <= 0 || l.Window <= 0
}

// LimitProvider returns the limit to apply to the next request.
// It is called on every Allow so configuration can change at runtime.
type LimitProvider func() Limit

// StaticLimit returns a provider that always yields l.
func StaticLimit(l Limit) LimitProvider {
	return func() Limit { return l }
}

// windowEntry tracks the current window of a single source address.
type windowEntry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	// removed is set under mu once the entry has left the map. A caller
	// holding a removed entry must look the source up again.
	removed bool
}

// WindowConfig configures a WindowLimiter.
type WindowConfig struct {
	Limit           LimitProvider    // nil means unlimited
	CleanupInterval time.Duration    // minimum time between sweeps
	Now             func() time.Time // clock, defaults to time.Now
}

// WindowLimiter implements per-source fixed-window rate limiting for datagram
// traffic. Entries live in a concurrent map and each entry is mutated under
// its own lock, so sources never contend with each other.
//
// Stale entries are swept lazily from Allow, at most once per cleanup
// interval, rather than by a background goroutine.
type WindowLimiter struct {
	limit           LimitProvider
	now             func() time.Time
	cleanupInterval time.Duration

	entries     sync.Map // netip.Addr -> *windowEntry
	size        atomic.Int64
	lastCleanup atomic.Int64 // unix nanos of the last sweep
	epoch       time.Time
}

// NewWindowLimiter creates a limiter with the given configuration.
func NewWindowLimiter(cfg WindowConfig) *WindowLimiter {
	limit := cfg.Limit
	if limit == nil {
		limit = StaticLimit(Limit{})
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	epoch := now()
	return &WindowLimiter{
		limit:           limit,
		now:             now,
		cleanupInterval: interval,
		epoch:           epoch,
	}
}

// Allow reports whether a request from addr may proceed.
//
// The first MaxRequests requests of a window pass; every later request in the
// same window is rejected. The request that arrives after the window has
// elapsed opens a new window with a count of one.
func (rl *WindowLimiter) Allow(addr netip.Addr) bool {
	limit := rl.limit()
	if limit.Unlimited() {
		return true
	}

	now := rl.now()
	rl.maybeSweep(now, limit.Window)

	for {
		entry := rl.entry(addr, now)
		entry.mu.Lock()
		if entry.removed {
			entry.mu.Unlock()
			continue
		}
		allowed := entry.admit(now, limit)
		entry.mu.Unlock()
		return allowed
	}
}

// admit counts one request. e.mu must be held.
func (e *windowEntry) admit(now time.Time, limit Limit) bool {
	if now.Sub(e.windowStart) > limit.Window {
		e.windowStart = now
		e.count = 1
		return true
	}
	e.count++
	return e.count <= limit.MaxRequests
}

// Len returns the number of tracked sources.
func (rl *WindowLimiter) Len() int {
	return int(rl.size.Load())
}

// Reset drops all tracked sources.
func (rl *WindowLimiter) Reset() {
	rl.entries.Range(func(key, value any) bool {
		rl.remove(key, value.(*windowEntry), nil)
		return true
	})
}

// entry returns the entry for addr, creating it if needed.
func (rl *WindowLimiter) entry(addr netip.Addr, now time.Time) *windowEntry {
	addr = addr.Unmap()
	if v, ok := rl.entries.Load(addr); ok {
		return v.(*windowEntry)
	}
	v, loaded := rl.entries.LoadOrStore(addr, &windowEntry{windowStart: now})
	if !loaded {
		rl.size.Add(1)
	}
	return v.(*windowEntry)
}

// maybeSweep runs a sweep if the cleanup interval has passed since the last
// one. Only the caller that wins the CAS performs the sweep.
func (rl *WindowLimiter) maybeSweep(now time.Time, window time.Duration) {
	elapsed := int64(now.Sub(rl.epoch))
	last := rl.lastCleanup.Load()
	if elapsed-last <= int64(rl.cleanupInterval) {
		return
	}
	if !rl.lastCleanup.CompareAndSwap(last, elapsed) {
		return
	}
	rl.Sweep(now, window)
}

// Sweep removes entries whose window started more than window+StaleGrace
// before now. It returns the number of removed entries.
func (rl *WindowLimiter) Sweep(now time.Time, window time.Duration) int {
	threshold := now.Add(-(window + StaleGrace))
	stale := func(e *windowEntry) bool { return e.windowStart.Before(threshold) }
	removed := 0
	rl.entries.Range(func(key, value any) bool {
		if rl.remove(key, value.(*windowEntry), stale) {
			removed++
		}
		return true
	})
	return removed
}

// remove deletes entry under its lock when cond (nil means always) holds and
// marks it removed, so a concurrent Allow that already loaded it retries
// against the map. It reports whether entry was deleted.
func (rl *WindowLimiter) remove(key any, entry *windowEntry, cond func(*windowEntry) bool) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed || (cond != nil && !cond(entry)) {
		return false
	}
	if !rl.entries.CompareAndDelete(key, entry) {
		return false
	}
	entry.removed = true
	rl.size.Add(-1)
	return true
}
