//go:build amd64 || arm64

package lfqueue

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// msNode is a Michael-Scott queue node. The queue always holds at least one
// dummy node so head and tail are never nil.
type msNode[T any] struct {
	value T
	next  atomic.Pointer[msNode[T]]
}

// msQueue is the lock-free backend, used on architectures with a cheap
// single-word CAS. head and tail are padded to separate cache lines: under
// high contention a consumer spinning on head and a producer spinning on
// tail would otherwise thrash the same line.
type msQueue[T any] struct {
	head atomic.Pointer[msNode[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[msNode[T]]
	_    cpu.CacheLinePad
}

func newBackend[T any]() backend[T] {
	dummy := &msNode[T]{}
	q := &msQueue[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *msQueue[T]) prep() {}

// enqueue implements the standard two-step MS enqueue: link the new node
// after the observed tail, then swing tail forward. Any thread may help
// complete the swing if it observes a tail whose next is already set.
func (q *msQueue[T]) enqueue(v T) {
	n := &msNode[T]{value: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				return
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// dequeue implements the standard two-step MS dequeue against the dummy
// head: the dummy is discarded and the node after it becomes the new dummy,
// its value read out before the swing is published.
func (q *msQueue[T]) dequeue() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				var zero T
				return zero, false
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			return v, true
		}
	}
}

func (q *msQueue[T]) drain(free func(T)) {
	for {
		v, ok := q.dequeue()
		if !ok {
			return
		}
		free(v)
	}
}
