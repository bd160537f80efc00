// File: internal/concurrency/mpsc_queue.go
// Package concurrency
// Author: momentics <momentics@gmail.com>
//
// MPSCQueue is a bounded multi-producer/single-consumer lock-free queue,
// the same sequence-counter construction as RingBuffer but used for
// control messages where many cores and the Scheduler may enqueue
// concurrently and exactly one consumer ever dequeues.

package concurrency

import "sync/atomic"

// MPSCQueue is a fixed-capacity, lock-free multi-producer/single-consumer
// queue.
type MPSCQueue[T any] struct {
	head uint64
	_    [cacheLinePad]byte
	tail uint64
	_    [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

// NewMPSCQueue creates a queue with capacity rounded up to a power of two.
func NewMPSCQueue[T any](capacity int) *MPSCQueue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &MPSCQueue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Enqueue adds val from any number of concurrent producers; returns false
// if full.
func (q *MPSCQueue[T]) Enqueue(val T) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		idx := tail & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		if dif == 0 {
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		} else if dif < 0 {
			return false // full
		}
	}
}

// Dequeue must only be called from the single consumer goroutine.
func (q *MPSCQueue[T]) Dequeue() (item T, ok bool) {
	head := q.head
	idx := head & q.mask
	c := &q.cells[idx]
	seq := c.sequence.Load()
	dif := int64(seq) - int64(head+1)
	if dif != 0 {
		return item, false
	}
	item = c.data
	c.sequence.Store(head + q.mask + 1)
	q.head = head + 1
	return item, true
}
