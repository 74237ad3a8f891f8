package broadcast

import (
	"sync"
	"testing"
	"time"
)

// fakeClock hands out timers that fire only when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs all armed timers, simulating the window elapsing.
func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.f()
		}
	}
}

func TestCoalescer_LastValuePerKeyWins(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var flushes []map[string]float64

	c := NewCoalescer[string, float64](250*time.Millisecond, clock, nil, func(batch map[string]float64) {
		mu.Lock()
		flushes = append(flushes, batch)
		mu.Unlock()
	})

	// 100 updates inside one window: exactly one batch, latest value per key.
	for i := 0; i < 100; i++ {
		c.Offer("alba/ore", float64(i))
	}
	c.Offer("brack/grain", 7.5)

	clock.fire()

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 1 {
		t.Fatalf("flushes = %d, want 1", len(flushes))
	}
	batch := flushes[0]
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	if batch["alba/ore"] != 99 {
		t.Errorf("alba/ore = %v, want 99 (latest)", batch["alba/ore"])
	}
	if batch["brack/grain"] != 7.5 {
		t.Errorf("brack/grain = %v, want 7.5", batch["brack/grain"])
	}
}

func TestCoalescer_EmptyWindowDoesNotFlush(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	c := NewCoalescer[string, int](time.Second, clock, nil, func(map[string]int) { calls++ })

	clock.fire() // no timer armed, nothing offered
	if calls != 0 {
		t.Errorf("flush calls = %d, want 0", calls)
	}

	c.Offer("k", 1)
	clock.fire()
	clock.fire() // second window is empty again
	if calls != 1 {
		t.Errorf("flush calls = %d, want 1", calls)
	}
}

func TestCoalescer_CustomMerge(t *testing.T) {
	clock := newFakeClock()
	var got map[string]int
	sum := func(old, new int) int { return old + new }

	c := NewCoalescer(time.Second, clock, sum, func(batch map[string]int) { got = batch })
	c.Offer("k", 1)
	c.Offer("k", 2)
	c.Offer("k", 3)
	clock.fire()

	if got["k"] != 6 {
		t.Errorf("merged value = %d, want 6", got["k"])
	}
}

func TestCoalescer_CloseFlushesPending(t *testing.T) {
	clock := newFakeClock()
	var got map[string]int
	c := NewCoalescer[string, int](time.Second, clock, nil, func(batch map[string]int) { got = batch })

	c.Offer("k", 42)
	c.Close()

	if got == nil || got["k"] != 42 {
		t.Errorf("pending batch not flushed on close: %v", got)
	}

	c.Offer("k", 1) // offers after close are ignored
	clock.fire()
	if got["k"] != 42 {
		t.Error("offer after close leaked into a flush")
	}
}
