package spsc

import (
	"sync"
	"testing"
	"time"
)

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for size 3")
		}
	}()
	New[int](3)
}

func TestRing_FIFOAndFull(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	if r.TryPush(99) {
		t.Fatal("push into full ring succeeded")
	}
	if r.Drops() != 1 {
		t.Fatalf("drops: got %d want 1", r.Drops())
	}
	for i := 0; i < 4; i++ {
		v, ok := r.TryPop()
		if !ok || v != i {
			t.Fatalf("pop: got %d,%v want %d,true", v, ok, i)
		}
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("pop from empty ring succeeded")
	}
}

func TestRing_ReadableEdge(t *testing.T) {
	r := New[int](2)
	select {
	case <-r.Readable():
		t.Fatal("readable before push")
	default:
	}
	r.TryPush(1)
	select {
	case <-r.Readable():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no readable signal after push")
	}
}

func TestRing_WrapAround(t *testing.T) {
	r := New[int](2)
	for i := 0; i < 10; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push %d failed", i)
		}
		v, ok := r.TryPop()
		if !ok || v != i {
			t.Fatalf("pop: got %d want %d", v, i)
		}
	}
	rd, wr := r.Watermarks()
	if rd != 10 || wr != 10 {
		t.Fatalf("watermarks: got %d/%d want 10/10", rd, wr)
	}
}

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	const n = 2000
	r := New[int](8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if r.TryPush(i) {
				i++
			} else {
				time.Sleep(time.Microsecond)
			}
		}
	}()

	next := 0
	deadline := time.After(5 * time.Second)
	for next < n {
		v, ok := r.TryPop()
		if ok {
			if v != next {
				t.Fatalf("order: got %d want %d", v, next)
			}
			next++
			continue
		}
		select {
		case <-r.Readable():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out at %d", next)
		}
	}
	wg.Wait()
}
