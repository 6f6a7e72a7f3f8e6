// Package spsc provides a fixed-capacity single-producer, single-consumer
// ring used to hand events from interrupt context to a task.
//
// The producer side never blocks, never allocates and takes no locks, so
// it is safe to call from an interrupt handler. The consumer is expected
// to be one task that waits on Readable and drains with TryPop.
package spsc

import "sync/atomic"

// Ring is a single-producer, single-consumer ring of T.
type Ring[T any] struct {
	buf  []T
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	drops atomic.Uint32

	readable chan struct{} // 0->>0 available edge
}

// New allocates a ring of the given power-of-two size (>= 2).
func New[T any](size int) *Ring[T] {
	if size < 2 || (size&(size-1)) != 0 {
		panic("spsc: size must be power of two >= 2")
	}
	return &Ring[T]{
		buf:      make([]T, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring[T]) size() uint32 { return uint32(len(r.buf)) }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Producer side

// TryPush enqueues v. It returns false and counts a drop when full.
func (r *Ring[T]) TryPush(v T) bool {
	rd := r.rd.Load()
	wr := r.wr.Load()
	if wr-rd >= r.size() {
		r.drops.Add(1)
		return false
	}
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1) // release

	// Signal the consumer. The channel has capacity one, so a wake
	// already pending is enough.
	select {
	case r.readable <- struct{}{}:
	default:
	}
	return true
}

// Consumer side

// TryPop dequeues the oldest item.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	if wr == rd {
		return zero, false
	}
	i := rd & r.mask
	v := r.buf[i]
	r.buf[i] = zero
	r.rd.Store(rd + 1) // release
	return v, true
}

// Readable fires at least once after a push. Drain with TryPop until empty
// before waiting again.
func (r *Ring[T]) Readable() <-chan struct{} { return r.readable }

// Drops returns how many pushes failed because the ring was full.
func (r *Ring[T]) Drops() uint32 { return r.drops.Load() }

// Watermarks exposes the raw indices for diagnostics.
func (r *Ring[T]) Watermarks() (rd, wr uint32) {
	return r.rd.Load(), r.wr.Load()
}
