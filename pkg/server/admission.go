package server

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Admission bounds the number of concurrently handled connections.
// A nil or unlimited Admission never blocks.
//
// Waiters are served in FIFO order, so no acquirer starves under bounded
// demand.
type Admission struct {
	sem *semaphore.Weighted
}

// NewAdmission returns an admission controller with max slots.
// max <= 0 means unlimited.
func NewAdmission(max int) *Admission {
	if max <= 0 {
		return &Admission{}
	}
	return &Admission{sem: semaphore.NewWeighted(int64(max))}
}

// Acquire blocks until a slot is free or ctx is done.
func (a *Admission) Acquire(ctx context.Context) error {
	if a == nil || a.sem == nil {
		return ctx.Err()
	}
	return a.sem.Acquire(ctx, 1)
}

// Release returns a slot. Every successful Acquire must be paired with
// exactly one Release.
func (a *Admission) Release() {
	if a == nil || a.sem == nil {
		return
	}
	a.sem.Release(1)
}
