// Package hub implements per-key completion notification. Callers register a
// one-shot channel for a string key ahead of the operation that will emit it,
// guaranteeing the eventual payload has somewhere to land regardless of which
// terminal branch fires it. Persistent subscriptions are also supported for
// broadcast-style keys.
package hub

import "sync"

// Hub routes emitted values to one-shot waiters and persistent subscribers
// addressed by string keys.
type Hub[T any] struct {
	mu      sync.Mutex
	oneShot map[string][]chan T
	subs    map[string][]subscription[T]
}

type subscription[T any] struct {
	key string
	ch  chan T
}

// New creates an empty hub
func New[T any]() *Hub[T] {
	return &Hub[T]{
		oneShot: make(map[string][]chan T),
		subs:    make(map[string][]subscription[T]),
	}
}

// Once registers a one-shot listener for the key. The returned channel is
// buffered and receives exactly one value, at the first Emit for the key
// after registration; it is never closed.
func (h *Hub[T]) Once(key string) <-chan T {
	ch := make(chan T, 1)
	h.mu.Lock()
	h.oneShot[key] = append(h.oneShot[key], ch)
	h.mu.Unlock()
	return ch
}

// Subscribe registers a persistent listener under subKey. Emits for the key
// are delivered non-blocking; a full channel drops the value rather than
// stalling the emitter. Re-subscribing the same subKey replaces the channel.
func (h *Hub[T]) Subscribe(key, subKey string, buffer int) <-chan T {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs[key] {
		if s.key == subKey {
			h.subs[key][i].ch = ch
			return ch
		}
	}
	h.subs[key] = append(h.subs[key], subscription[T]{key: subKey, ch: ch})
	return ch
}

// Unsubscribe removes the persistent listener registered under subKey;
// unknown keys are a no-op
func (h *Hub[T]) Unsubscribe(key, subKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[key]
	for i, s := range list {
		if s.key == subKey {
			h.subs[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every one-shot waiter registered for the key (consuming
// them) and to every persistent subscriber. It returns the number of
// listeners the value was handed to.
func (h *Hub[T]) Emit(key string, v T) int {
	h.mu.Lock()
	waiters := h.oneShot[key]
	delete(h.oneShot, key)
	subs := make([]subscription[T], len(h.subs[key]))
	copy(subs, h.subs[key])
	h.mu.Unlock()

	delivered := 0
	for _, ch := range waiters {
		// one-shot channels are buffered with capacity 1 and consumed here,
		// so this send cannot block
		ch <- v
		delivered++
	}
	for _, s := range subs {
		select {
		case s.ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}
