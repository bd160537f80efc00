// File: internal/concurrency/scheduler.go
// Author: momentics <momentics@gmail.com>
//
// Minimal timer-based api.Scheduler implementation for timed background
// jobs.

package concurrency

import (
	"time"

	"github.com/momentics/nfvworker/internal/api"
)

type timerCancelable struct {
	t    *time.Timer
	done chan struct{}
}

func (c *timerCancelable) Cancel() error {
	c.t.Stop()
	return nil
}

func (c *timerCancelable) Done() <-chan struct{} { return c.done }

// Scheduler is a trivial time.Timer-backed api.Scheduler.
type Scheduler struct{}

// NewScheduler returns a Scheduler instance for timed tasks.
func NewScheduler() *Scheduler { return &Scheduler{} }

func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	done := make(chan struct{})
	t := time.AfterFunc(time.Duration(delayNanos), func() {
		defer close(done)
		fn()
	})
	return &timerCancelable{t: t, done: done}, nil
}

// monoBase anchors Now so it reads the runtime's monotonic clock.
var monoBase = time.Now()

func (s *Scheduler) Now() int64 {
	return time.Since(monoBase).Nanoseconds()
}

var _ api.Scheduler = (*Scheduler)(nil)
