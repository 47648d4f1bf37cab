// Package ring provides a bounded, thread-safe circular buffer.
package ring

import "sync"

// Buffer keeps the newest N values. When full, a push overwrites the oldest.
//
// Example with capacity 3:
//
//	Push(A) -> [A, _, _]  head=1, size=1
//	Push(B) -> [A, B, _]  head=2, size=2
//	Push(C) -> [A, B, C]  head=0, size=3
//	Push(D) -> [D, B, C]  head=1, size=3 (A dropped)
//
// Snapshot always reads oldest to newest regardless of where head sits.
type Buffer[T any] struct {
	mu sync.RWMutex

	items []T

	// head is where the next push lands, not the newest item.
	head int
	size int
	cap  int
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 50

// New creates a buffer holding at most capacity values.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Push appends v, dropping the oldest value when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = v
	b.head = (b.head + 1) % b.cap
	if b.size < b.cap {
		b.size++
	}
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	if b.size < b.cap {
		copy(out, b.items[:b.size])
		return out
	}
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.cap]
	}
	return out
}

// Last returns the newest value, if any.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head-1+b.cap)%b.cap], true
}

// Len returns the number of values held.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the fixed capacity. cap never changes after New.
func (b *Buffer[T]) Cap() int {
	return b.cap
}

// Clear drops every value.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
