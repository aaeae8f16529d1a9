package callcore

import (
	"fmt"
	"sync"
)

// Barrier is the condition-variable-backed primitive used by Synchronize
// (§4.2, §5, §8) to let a test or shutdown path block until all queued
// events and tasks have drained. It is single-shot: Wait returns once and
// every subsequent call observes the same outcome.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

// NewBarrier creates an unfired Barrier.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Signal marks the barrier fired and wakes every waiter. Safe to call more
// than once.
func (b *Barrier) Signal() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Wait blocks until Signal has been called.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.done {
		b.cond.Wait()
	}
}

// SynchronizeError is the error kind reported when a pool does not drain
// within synchronizeBound during Synchronize or Terminate handling (§5
// "Cancellation and timeouts", §7 "Synchronization timeout"). The
// dispatcher logs it and keeps running; it does not stop the dispatch loop.
type SynchronizeError struct {
	Pool string
}

func (e *SynchronizeError) Error() string {
	return fmt.Sprintf("synchronize: %s pool did not drain within bound", e.Pool)
}
