// Package obs provides a minimal observable state container: a single value
// replaced wholesale, with keyed, insertion-ordered subscribers notified
// synchronously after every replacement. It is the in-process default for
// the controller's state-container boundary; production deployments inject
// their own persisted implementation.
package obs

import "sync"

type subscriber[T any] struct {
	key string
	fn  func(T)
}

// Container holds one value of type T and its subscribers.
// The zero value is not usable; construct with New.
type Container[T any] struct {
	mu    sync.Mutex
	state T
	subs  []subscriber[T]
}

// New creates a container holding the initial value
func New[T any](initial T) *Container[T] {
	return &Container[T]{state: initial}
}

// State returns the currently published value
func (c *Container[T]) State() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Replace swaps the stored value and notifies every subscriber synchronously,
// in subscription order. Subscribers observe either the previous value or the
// new one, never a partial update.
func (c *Container[T]) Replace(next T) {
	c.mu.Lock()
	c.state = next
	subs := make([]subscriber[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
}

// Subscribe registers fn under the given key. Subscribing an existing key
// replaces its callback in place, keeping the original notification order.
func (c *Container[T]) Subscribe(key string, fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.key == key {
			c.subs[i].fn = fn
			return
		}
	}
	c.subs = append(c.subs, subscriber[T]{key: key, fn: fn})
}

// Unsubscribe removes the subscriber with the given key; unknown keys are a
// no-op so the call is idempotent
func (c *Container[T]) Unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.key == key {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}
