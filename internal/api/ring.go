// File: internal/api/ring.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Fast, lock-free ring buffer contract for cross-core data transfer.

package api

// Ring is the contract for a high-performance, bounded FIFO used both as
// the per-core local ring and as the backing store for each sw-queue slot.
type Ring[T any] interface {
	// Enqueue adds item, returns false if buffer full.
	Enqueue(item T) bool
	// Dequeue removes and returns the oldest item, false if buffer empty.
	Dequeue() (T, bool)
	// Len returns number of items currently in buffer.
	Len() int
	// Cap returns fixed buffer capacity.
	Cap() int
}
