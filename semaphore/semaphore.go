// Package semaphore provides a counting semaphore with a strict FIFO wait
// queue and context-bounded acquisition. It backs the admission control for
// code generation and simulation, which both cap in-flight work at a fixed
// concurrency.
package semaphore

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrAcquireTimeout is returned when an acquire could not be satisfied
// before the caller's deadline elapsed.
var ErrAcquireTimeout = errors.New("semaphore: acquire timed out")

// Semaphore is a counting semaphore. Waiters are served strictly in arrival
// order; a released slot is handed directly to the oldest waiter rather than
// returned to the pool, so late arrivals can never overtake the queue.
type Semaphore struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters list.List // of chan struct{}, oldest at front
}

// New creates a semaphore admitting at most max concurrent holders.
// A max below 1 is treated as 1.
func New(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{max: max}
}

// Acquire blocks until a slot is available or ctx ends. A deadline expiry is
// reported as ErrAcquireTimeout; plain cancellation returns ctx.Err(). In
// both failure cases the waiter has been removed from the queue before the
// error is returned.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.active < s.max && s.waiters.Len() == 0 {
		s.active++
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// The slot was handed over between cancellation and taking the
			// lock. It is ours now, so pass it on.
			s.mu.Unlock()
			s.Release()
		default:
			s.waiters.Remove(elem)
			s.mu.Unlock()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrAcquireTimeout
		}
		return ctx.Err()
	}
}

// Release frees a slot. If waiters are queued the slot transfers to the
// oldest one without touching the active count. Releasing at the floor is a
// no-op; the active count never goes negative.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.waiters.Front(); e != nil && s.active > 0 {
		s.waiters.Remove(e)
		close(e.Value.(chan struct{}))
		return
	}
	if s.active > 0 {
		s.active--
	}
}

// Active reports the number of currently held slots.
func (s *Semaphore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Waiting reports the number of queued acquirers.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
