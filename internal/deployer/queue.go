package deployer

import (
	"sync"

	"github.com/roach88/ignite/internal/ir"
)

// outcome is what a worker reports when its future settles.
type outcome struct {
	futureID string
	value    ir.Value
	err      error
	// interrupted is set when the run was cancelled before the worker
	// recorded anything it must settle.
	interrupted bool
}

// outcomeQueue is an unbounded FIFO of worker outcomes.
//
// Workers enqueue from their own goroutines; the scheduler drains the queue.
// The signal channel (buffered, size 1) coalesces wakeups, so the scheduler
// must drain with TryDequeue after every receive from Wait.
type outcomeQueue struct {
	mu       sync.Mutex
	outcomes []outcome
	signal   chan struct{}
}

func newOutcomeQueue() *outcomeQueue {
	return &outcomeQueue{signal: make(chan struct{}, 1)}
}

// Enqueue adds an outcome to the back of the queue.
func (q *outcomeQueue) Enqueue(o outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.outcomes = append(q.outcomes, o)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front outcome without blocking.
func (q *outcomeQueue) TryDequeue() (outcome, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.outcomes) == 0 {
		return outcome{}, false
	}
	o := q.outcomes[0]
	// Release the value for GC.
	q.outcomes[0] = outcome{}
	if len(q.outcomes) == 1 {
		q.outcomes = q.outcomes[:0]
	} else {
		q.outcomes = q.outcomes[1:]
	}
	return o, true
}

// Wait returns a channel that signals when outcomes may be available.
func (q *outcomeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *outcomeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.outcomes)
}
