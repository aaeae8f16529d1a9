package callcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool is a single-threaded serial executor: exactly one goroutine drains
// a FIFO of thunks, so tasks submitted to the same Pool observe a
// happens-before relation in submission order (§4.2, §5). The CCC uses
// two of these — Worker for blocking Media Backend/signaling I/O, Notify
// for application-visible callbacks only.
type Pool struct {
	name string

	mu      sync.Mutex
	tasks   chan func()
	stopped bool
	done    chan struct{}
}

// NewPool starts a Pool's single consumer goroutine. name is used only for
// logging.
func NewPool(name string) *Pool {
	p := &Pool{
		name:  name,
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pool) run() {
	defer close(p.done)
	for task := range p.tasks {
		task()
	}
}

// Post submits a thunk. A no-op if the pool has been stopped (§4.2
// "Posting to a pool that has been stopped is a no-op").
func (p *Pool) Post(task func()) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.tasks <- task
}

// Stop closes the task channel and blocks until the consumer goroutine has
// drained every already-submitted task and exited. Safe to call more than
// once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()
	<-p.done
}

// Drain blocks until every task submitted before Drain was called has
// completed, or the timeout elapses (in which case ok is false). It works
// by posting a sentinel task and waiting for it to run, which — because
// the pool is strictly FIFO — can only happen after everything already
// queued has completed.
func (p *Pool) Drain(timeout time.Duration) (ok bool) {
	reached := make(chan struct{})
	p.Post(func() { close(reached) })
	select {
	case <-reached:
		return true
	case <-time.After(timeout):
		return false
	}
}

// scheduleUntilTerminating posts task to pool unless call has already
// reached Terminating by the time the task runs; in that case the task is
// skipped. Errors are re-injected onto queue as InternalError, never
// raised to the FSM directly (§4.2, §7).
func scheduleUntilTerminating(pool *Pool, queue *EventQueue, call *Call, label string, task func(*Call) error) {
	pool.Post(func() {
		if call.State().IsTerminating() {
			slog.Debug("skipping task, call terminating", "pool", pool.name, "call_id", call.ID(), "task", label)
			return
		}
		if err := task(call); err != nil {
			queue.Post(call.ID(), CallEvent{
				Kind: EvInternalError,
				Err:  fmt.Errorf("%s: %w", label, err),
			})
		}
	})
}

// scheduleEvenWhenTerminating posts task to pool unconditionally. Used for
// outgoing-hangup propagation and for surfacing remote_hangup to the
// application even while the call is already terminating (§4.2, §4.6).
func scheduleEvenWhenTerminating(pool *Pool, queue *EventQueue, call *Call, label string, task func(*Call) error) {
	pool.Post(func() {
		if err := task(call); err != nil {
			queue.Post(call.ID(), CallEvent{
				Kind: EvInternalError,
				Err:  fmt.Errorf("%s: %w", label, err),
			})
		}
	})
}

// synchronizeBound is the per-pool drain deadline for Synchronize handling
// (§5 "Synchronize uses a 2-second per-pool bounded wait").
const synchronizeBound = 2 * time.Second

// synchronizePools drains both pools concurrently and reports a
// SynchronizeError if either exceeds its bound. ctx is only used to make
// the overall wait cancelable from tests; production callers pass
// context.Background().
func synchronizePools(ctx context.Context, worker, notify *Pool) error {
	type result struct {
		pool string
		ok   bool
	}
	results := make(chan result, 2)
	for _, p := range []*Pool{worker, notify} {
		p := p
		go func() { results <- result{pool: p.name, ok: p.Drain(synchronizeBound)} }()
	}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if !r.ok {
				return &SynchronizeError{Pool: r.pool}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
