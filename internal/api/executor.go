// File: internal/api/executor.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Executor contract for parallel task dispatch of background bookkeeping
// (the runtime's invariant verification) off the per-core hot path.

package api

// Executor abstracts a pool of worker goroutines.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error
	// NumWorkers returns current number of active worker routines.
	NumWorkers() int
	// Resize adjusts the concurrency at runtime.
	Resize(newCount int)
	// Close shuts the executor down, waiting for in-flight tasks.
	Close()
}
