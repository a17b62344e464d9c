package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/engine"
	"github.com/roach88/anchor/internal/world"
)

// DefaultSubscriberBuffer is the per-subscriber diff backlog.
const DefaultSubscriberBuffer = 64

// Hub fans each tick's diff out to stream subscribers. It is an
// engine.Observer; Broadcast never blocks the sim goroutine. A subscriber
// whose backlog is full misses the diff and repairs the gap from the
// World Store on its next message.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	active sync.WaitGroup
	logger *zap.Logger
}

// Subscription receives broadcast diffs until it is unsubscribed or the
// hub closes, at which point Diffs is closed.
type Subscription struct {
	ch       chan world.Diff
	dropped  uint64
	released bool
}

// Diffs returns the subscription's channel.
func (s *Subscription) Diffs() <-chan world.Diff { return s.ch }

// NewHub creates a hub. buffer <= 0 uses DefaultSubscriberBuffer.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. Returns false once the hub is closed.
func (h *Hub) Subscribe() (*Subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &Subscription{ch: make(chan world.Diff, h.buffer)}
	h.subs[sub] = struct{}{}
	h.active.Add(1)
	return sub, true
}

// Unsubscribe releases sub, closing its channel if Close has not already.
// Every successful Subscribe must be paired with one Unsubscribe; extra
// calls are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if sub.released {
		h.mu.Unlock()
		return
	}
	sub.released = true
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
	h.active.Done()
}

// ObserveTick implements engine.Observer.
func (h *Hub) ObserveTick(res *engine.TickResult) {
	h.Broadcast(res.Diff)
}

// Broadcast offers d to every subscriber without blocking.
func (h *Hub) Broadcast(d world.Diff) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- d:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				h.logger.Debug("stream subscriber lagging",
					zap.Uint64("tick", d.Tick),
					zap.Uint64("dropped", sub.dropped),
				)
			}
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
	}
	clear(h.subs)
}

// Wait blocks until every subscription has been released.
func (h *Hub) Wait() {
	h.active.Wait()
}
