// Package lfqueue implements an MPMC queue: a Michael-Scott
// lock-free queue on platforms where a single-word CAS is cheap, falling
// back to a mutex-protected doubly linked list everywhere else — the same
// split the original C made available through its ATOMIC_QUEUE_OPERATIONS
// build switch.
package lfqueue

import "libsds/pkg/sds"

// Queue is a multi-producer, multi-consumer FIFO. The zero value is not
// usable; construct with New.
type Queue[T any] struct {
	impl      backend[T]
	valueFree func(T)
}

// backend is implemented once per build-tag-selected file (queue_lockfree.go,
// queue_fallback.go).
type backend[T any] interface {
	enqueue(T)
	dequeue() (T, bool)
	prep()
	drain(func(T))
}

// New constructs an empty queue. valueFree is invoked on every value still
// queued at Destroy time.
func New[T any](valueFree func(T)) *Queue[T] {
	return &Queue[T]{impl: newBackend[T](), valueFree: valueFree}
}

// TPrep registers the calling goroutine with the queue. On the lock-free
// backend this is a no-op preserved for API parity with the original
// thread-registration contract — Go's garbage collector removes the
// hazard-pointer bookkeeping that made thread registration load-bearing in
// the C implementation. Callers should still call it once per goroutine
// before using a Queue, in case a future backend needs it.
func (q *Queue[T]) TPrep() {
	q.impl.prep()
}

// Enqueue pushes elem to the tail of the queue.
func (q *Queue[T]) Enqueue(elem T) sds.Result {
	q.impl.enqueue(elem)
	return sds.Success
}

// Dequeue pops the head of the queue. Returns ListExhausted if the queue
// was empty.
func (q *Queue[T]) Dequeue() (T, sds.Result) {
	v, ok := q.impl.dequeue()
	if !ok {
		var zero T
		return zero, sds.ListExhausted
	}
	return v, sds.Success
}

// Destroy frees every value still queued via valueFree. All producers and
// consumers must have stopped before calling this.
func (q *Queue[T]) Destroy() {
	if q.valueFree != nil {
		q.impl.drain(q.valueFree)
	}
}
