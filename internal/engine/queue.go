package engine

import (
	"sync"

	"github.com/roach88/anchor/internal/ir"
)

// IntentQueue is a thread-safe FIFO carrying intents from other goroutines
// (the sync service) into the sim goroutine.
//
// The queue is unbounded so producers never block on a slow tick. The sim
// drains it once per tick.
type IntentQueue struct {
	mu      sync.Mutex
	intents []ir.Intent
	closed  bool
}

// NewIntentQueue creates an empty queue.
func NewIntentQueue() *IntentQueue {
	return &IntentQueue{
		intents: make([]ir.Intent, 0, 64),
	}
}

// Enqueue adds an intent to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *IntentQueue) Enqueue(in ir.Intent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.intents = append(q.intents, in)
	return true
}

// Drain removes every queued intent in arrival order. The second result
// reports whether the queue has been closed; a closed queue still yields
// whatever was enqueued before Close.
func (q *IntentQueue) Drain() ([]ir.Intent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.intents) == 0 {
		return nil, q.closed
	}
	out := make([]ir.Intent, len(q.intents))
	copy(out, q.intents)
	clear(q.intents)
	q.intents = q.intents[:0]
	return out, q.closed
}

// Len returns the current queue length.
func (q *IntentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.intents)
}

// Closed reports whether Close has been called.
func (q *IntentQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed; later Enqueue calls return false.
// Idempotent.
func (q *IntentQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
