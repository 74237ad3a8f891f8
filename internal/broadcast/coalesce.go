package broadcast

import (
	"sync"
	"time"
)

// Coalescer batches high-frequency keyed signals into one flush per window.
// Updates within a window are merged per key (the default merge keeps the
// last value), so observers are guaranteed eventual delivery of the latest
// value per key, never every intermediate value.
//
// The primitive is generic so it can throttle any signal type, not just
// price ticks.
type Coalescer[K comparable, V any] struct {
	window time.Duration
	clock  Clock
	merge  func(old, new V) V
	flush  func(map[K]V)

	mu      sync.Mutex
	pending map[K]V
	timer   Timer
	closed  bool
}

// LastWins is the default merge: the newest value replaces the old one.
func LastWins[V any](_, new V) V { return new }

// NewCoalescer creates a coalescer that calls flush with the merged window
// contents at most once per window. A nil merge defaults to LastWins.
func NewCoalescer[K comparable, V any](
	window time.Duration,
	clock Clock,
	merge func(old, new V) V,
	flush func(map[K]V),
) *Coalescer[K, V] {
	if clock == nil {
		clock = SystemClock{}
	}
	if merge == nil {
		merge = LastWins[V]
	}
	return &Coalescer[K, V]{
		window: window,
		clock:  clock,
		merge:  merge,
		flush:  flush,
	}
}

// Offer records a signal. The first offer of a window arms the flush timer;
// later offers in the same window are merged in place.
func (c *Coalescer[K, V]) Offer(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.pending == nil {
		c.pending = make(map[K]V)
	}
	if old, ok := c.pending[key]; ok {
		c.pending[key] = c.merge(old, value)
	} else {
		c.pending[key] = value
	}
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.window, c.fire)
	}
}

// fire delivers the window contents. Runs on the timer goroutine; the flush
// callback executes outside the lock.
func (c *Coalescer[K, V]) fire() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()

	if len(batch) > 0 && c.flush != nil {
		c.flush(batch)
	}
}

// Close flushes anything pending and stops further offers.
func (c *Coalescer[K, V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) > 0 && c.flush != nil {
		c.flush(batch)
	}
}
