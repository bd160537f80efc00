// File: internal/clock/clock.go
// Package clock
// Author: momentics <momentics@gmail.com>
//
// Monotonic clock implementation for the Clock & Epoch component
// Monotonic clock implementations. Production code uses the Go
// runtime's monotonic clock reading (embedded in time.Time, never
// wall-clock-adjusted); Fake lets tests drive epoch-boundary behavior
// deterministically.

package clock

import (
	"sync/atomic"
	"time"

	"github.com/momentics/nfvworker/internal/api"
)

// Monotonic implements api.Clock using the runtime's monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a clock whose NowNs is relative to construction
// time (never negative, never wraps within a process lifetime).
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NowNs returns nanoseconds elapsed since the clock was constructed.
func (m *Monotonic) NowNs() int64 {
	return int64(time.Since(m.start))
}

var _ api.Clock = (*Monotonic)(nil)

// Fake is a manually-advanced clock for deterministic epoch-boundary
// tests.
type Fake struct {
	nowNs atomic.Int64
}

// NewFake creates a Fake clock starting at t0Ns.
func NewFake(t0Ns int64) *Fake {
	f := &Fake{}
	f.nowNs.Store(t0Ns)
	return f
}

// NowNs returns the current fake time.
func (f *Fake) NowNs() int64 { return f.nowNs.Load() }

// Advance moves the fake clock forward by deltaNs and returns the new time.
func (f *Fake) Advance(deltaNs int64) int64 { return f.nowNs.Add(deltaNs) }

// Set pins the fake clock to an absolute nanosecond value.
func (f *Fake) Set(ns int64) { f.nowNs.Store(ns) }

var _ api.Clock = (*Fake)(nil)
