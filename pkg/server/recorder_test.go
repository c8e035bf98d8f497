package server

import (
	"sync"
	"time"
)

// countingRecorder is a Recorder that tallies every event per label set.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	bytes  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]int{}, bytes: map[string]int{}}
}

func (r *countingRecorder) inc(event string) {
	r.mu.Lock()
	r.counts[event]++
	r.mu.Unlock()
}

func (r *countingRecorder) add(event string, n int) {
	r.mu.Lock()
	r.bytes[event] += n
	r.mu.Unlock()
}

func (r *countingRecorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[event]
}

func (r *countingRecorder) Bytes(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes[event]
}

func (r *countingRecorder) ConnectionOpened(Labels)                { r.inc("opened") }
func (r *countingRecorder) ConnectionClosed(Labels, time.Duration) { r.inc("closed") }
func (r *countingRecorder) Request(Labels)                         { r.inc("request") }
func (r *countingRecorder) BytesReceived(_ Labels, n int)          { r.add("received", n) }
func (r *countingRecorder) BytesSent(_ Labels, n int)              { r.add("sent", n) }
func (r *countingRecorder) Error(Labels)                           { r.inc("error") }
func (r *countingRecorder) RateLimited(Labels)                     { r.inc("ratelimited") }
func (r *countingRecorder) IdleTimeout(Labels)                     { r.inc("idle") }
