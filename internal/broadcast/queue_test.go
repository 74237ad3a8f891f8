package broadcast

import (
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](4, 64)
	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	for i := 0; i < 10; i++ {
		got, ok := q.Pop()
		if !ok || got != i {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", got, ok, i)
		}
	}
}

func TestQueue_GrowsToCeiling(t *testing.T) {
	q := NewQueue[int](2, 8)
	for i := 0; i < 8; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) failed before ceiling", i)
		}
	}
	if q.Push(99) {
		t.Error("Push should fail once full at ceiling")
	}

	stats := q.Stats()
	if stats.Capacity != 8 {
		t.Errorf("capacity = %d, want 8", stats.Capacity)
	}
	if stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.Dropped)
	}
	if stats.Resizes == 0 {
		t.Error("expected at least one resize")
	}

	// Order survives growth.
	for i := 0; i < 8; i++ {
		got, _ := q.Pop()
		if got != i {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
}

func TestQueue_CloseWakesReceiver(t *testing.T) {
	q := NewQueue[int](2, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, ok := q.Pop(); ok {
			t.Error("Pop on closed empty queue should report !ok")
		}
	}()

	q.Close()
	wg.Wait()

	if q.Push(1) {
		t.Error("Push after Close should fail")
	}
}

func TestQueue_TryPop(t *testing.T) {
	q := NewQueue[string](2, 8)
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue should report !ok")
	}
	q.Push("a")
	got, ok := q.TryPop()
	if !ok || got != "a" {
		t.Errorf("TryPop = (%q, %v), want (a, true)", got, ok)
	}
}
