// Package queue provides the fixed-capacity FIFO that carries detection
// reports from the sensor phases to the track managers.
//
// Bounded is the only synchronisation point between the time-critical
// sensor lane and the background tracking lane. Every operation is
// non-blocking: Put rejects when full, Get reports absence when empty.
package queue

import "sync"

// Bounded is a fixed-capacity ring buffer guarded by a short-held mutex.
// The lock is only ever held across index arithmetic and a single slot
// copy, never across callbacks or allocation.
type Bounded[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest entry
	count int
}

// New creates a queue holding at most capacity items. A capacity below 1
// is raised to 1 so that the queue is always usable.
func New[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{items: make([]T, capacity)}
}

// Put appends item at the tail. It returns false without blocking when the
// queue is full; the caller owns the drop policy.
func (q *Bounded[T]) Put(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.items) {
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++
	return true
}

// Get removes and returns the oldest item. The boolean is false when the
// queue is empty, in which case the queue is left unchanged and the zero
// value is returned.
func (q *Bounded[T]) Get() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero // release references held by the slot
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return item, true
}

// Peek returns the item idx positions from the head without removing it.
// Peek(0) is the next item Get would return.
func (q *Bounded[T]) Peek(idx int) (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= q.count {
		return zero, false
	}
	return q.items[(q.head+idx)%len(q.items)], true
}

// Clear empties the queue in constant time. Slots are not zeroed; they are
// overwritten by later Puts.
func (q *Bounded[T]) Clear() {
	q.mu.Lock()
	q.head = 0
	q.count = 0
	q.mu.Unlock()
}

// Entries returns the number of queued items.
func (q *Bounded[T]) Entries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Capacity returns the fixed capacity chosen at construction.
func (q *Bounded[T]) Capacity() int {
	return len(q.items)
}

// IsEmpty reports whether the queue holds no items.
func (q *Bounded[T]) IsEmpty() bool {
	return q.Entries() == 0
}

// IsFull reports whether a Put would be rejected.
func (q *Bounded[T]) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == len(q.items)
}
