// Package events fans out order and price notifications. Every subscriber
// owns its channel and its unsubscribe func; there is no process-wide
// listener registry.
package events

import (
	"sync"
	"sync/atomic"
)

// Hub delivers published values to every current subscriber. A subscriber
// that falls behind loses values rather than blocking publishers.
type Hub[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription[T]
	next    uint64
	dropped atomic.Uint64
	closed  bool
}

type subscription[T any] struct {
	ch     chan T
	filter func(T) bool
}

// NewHub returns an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uint64]*subscription[T])}
}

// Subscribe registers a buffered channel. filter may be nil to receive
// everything. The returned cancel func closes the channel and is safe to call
// more than once.
func (h *Hub[T]) Subscribe(buffer int, filter func(T) bool) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = &subscription[T]{ch: ch, filter: filter}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish delivers v without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.filter != nil && !s.filter(v) {
			continue
		}
		select {
		case s.ch <- v:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts values discarded because a subscriber buffer was full.
func (h *Hub[T]) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the current subscriber count.
func (h *Hub[T]) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later Subscribe calls get a closed
// channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
