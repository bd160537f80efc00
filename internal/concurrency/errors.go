// File: internal/concurrency/errors.go
// Author: momentics <momentics@gmail.com>
//
// Error definitions for the concurrency package.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down.
	ErrExecutorClosed = errors.New("executor is closed")
)
