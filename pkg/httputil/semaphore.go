package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds concurrent calls to the remote analyzer. The analyzer
// may be single-threaded or pooled; either way unbounded fan-in from the
// gateway would only queue inside it.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 16
	}
	return &Semaphore{
		sem: make(chan struct{}, capacity),
	}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		s.dropped.Add(1)
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Release returns a slot. Must be called after a successful Acquire or
// TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}

// DroppedCount returns how many acquisitions failed or were cancelled.
// Useful as a backpressure signal.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}
