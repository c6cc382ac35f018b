package queue

import (
	"sync"
)

// Ring is a thread-safe FIFO that doubles its capacity when full, so
// producers never block. The settlement path pushes results here and the
// slow consumers (archive writer, relay publisher) drain at their own
// pace.
type Ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	tail   int
	count  int
	closed bool

	pushed int64
	popped int64
	grown  int
}

// NewRing creates a ring with the given initial capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{buf: make([]T, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push appends an item, growing the ring if it is full. Returns false
// once the ring is closed.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if r.count == len(r.buf) {
		r.grow()
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	r.pushed++

	r.cond.Signal()
	return true
}

// Pop blocks until an item is available or the ring is closed and
// drained, reporting which with its second return.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// TryPop removes an item without blocking.
func (r *Ring[T]) TryPop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.popLocked(), true
}

// Drain removes up to max items at once (all of them when max <= 0).
func (r *Ring[T]) Drain(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = r.popLocked()
	}
	return out
}

// Close stops new pushes. Consumers drain the remaining items, then Pop
// reports closed.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stats reports cumulative counters for observability.
type Stats struct {
	Queued   int
	Capacity int
	Pushed   int64
	Popped   int64
	Grown    int
}

// Stats returns a snapshot of the ring's counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Queued:   r.count,
		Capacity: len(r.buf),
		Pushed:   r.pushed,
		Popped:   r.popped,
		Grown:    r.grown,
	}
}

// popLocked removes the head item. Caller holds the lock and has checked
// count > 0.
func (r *Ring[T]) popLocked() T {
	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	r.popped++
	return item
}

// grow doubles the backing array. Caller holds the lock.
func (r *Ring[T]) grow() {
	next := make([]T, len(r.buf)*2)

	if r.head < r.tail {
		copy(next, r.buf[r.head:r.tail])
	} else if r.count > 0 {
		n := copy(next, r.buf[r.head:])
		copy(next[n:], r.buf[:r.tail])
	}

	r.buf = next
	r.head = 0
	r.tail = r.count
	r.grown++
}
