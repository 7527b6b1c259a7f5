// SPDX-License-Identifier: EPL-2.0

// Package eventq is a bounded queue that never blocks its producers. When
// the queue is full new events are dropped and counted.
//
// Producers must not be device callbacks: a channel send takes a runtime
// lock. Callbacks publish through atomics and the owner turns those into
// events on its own goroutine.
package eventq

import "sync/atomic"

type Queue[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

func New[T any](size int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, max(size, 1))}
}

// Push enqueues ev and reports whether it was kept.
func (q *Queue[T]) Push(ev T) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop returns the oldest event, if any.
func (q *Queue[T]) Pop() (T, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		var zero T
		return zero, false
	}
}

// Drain pops every queued event into fn and returns how many it saw.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		ev, ok := q.Pop()
		if !ok {
			return n
		}
		fn(ev)
		n++
	}
}

// C exposes the queue for select loops.
func (q *Queue[T]) C() <-chan T { return q.ch }

func (q *Queue[T]) Len() int { return len(q.ch) }

// Dropped is the number of events lost to a full queue.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
