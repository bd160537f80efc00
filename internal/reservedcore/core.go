// File: internal/reservedcore/core.go
// Package reservedcore
// Author: momentics <momentics@gmail.com>
//
// ReservedCore is the demand-activated burst absorber: idle until a
// NormalCore's admission pass asks the Scheduler to activate it on a
// specific sw-queue, drains that queue through the same downstream NF
// callback as a NormalCore, and returns to idle on ToRest once the queue
// empties. The loop is driven entirely by RuntimeBus messages.

package reservedcore

import (
	"context"
	"sync/atomic"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/swqueue"
)

type runState int32

const (
	stateIdle runState = iota
	stateWorking
	stateDrained
)

// Core is one ReservedCore.
type Core struct {
	cfg Config

	swPool *swqueue.Pool
	bus    *swqueue.Bus

	dispatcher api.NFHandler
	metrics    *control.MetricsRegistry
	clk        api.Clock

	// active holds the sw-queue ids this core is currently bound to as
	// consumer; draining holds ids it has been
	// told to rest on but has not yet observed empty.
	active   map[int]struct{}
	draining map[int]struct{}

	state atomic.Int32
}

// New constructs a ReservedCore bound to the shared SwQueuePool and its own
// RuntimeBus control channel.
func New(cfg Config, swPool *swqueue.Pool, bus *swqueue.Bus, clk api.Clock, metrics *control.MetricsRegistry) *Core {
	return &Core{
		cfg:      cfg,
		swPool:   swPool,
		bus:      bus,
		clk:      clk,
		metrics:  metrics,
		active:   make(map[int]struct{}),
		draining: make(map[int]struct{}),
	}
}

// SetDispatcher wires the downstream NF handoff.
func (c *Core) SetDispatcher(d api.NFHandler) { c.dispatcher = d }

// ID returns the core's id.
func (c *Core) ID() int { return c.cfg.ID }

// Idle reports whether this core currently owns no sw-queues at all.
func (c *Core) Idle() bool {
	return len(c.active) == 0 && len(c.draining) == 0
}

// Disable requests a graceful shutdown.
func (c *Core) Disable() {
	c.state.CompareAndSwap(int32(stateIdle), int32(stateDrained))
	c.state.CompareAndSwap(int32(stateWorking), int32(stateDrained))
}

// Drained reports whether the core has finished shutting down.
func (c *Core) Drained() bool { return runState(c.state.Load()) == stateDrained }

// Run drives the drain loop until ctx is canceled or Disable is called.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(stateDrained))
			return
		default:
		}
		if runState(c.state.Load()) == stateDrained {
			return
		}
		c.RunOnce()
	}
}

// RunOnce drains pending bus messages, then services every bound queue
// once.
func (c *Core) RunOnce() {
	c.pollBus()
	worked := false
	for qid := range c.active {
		if c.drainQueue(qid) {
			worked = true
		}
	}
	for qid := range c.draining {
		c.finishDraining(qid)
	}
	if worked {
		c.state.Store(int32(stateWorking))
	} else if len(c.active) == 0 {
		c.state.CompareAndSwap(int32(stateWorking), int32(stateIdle))
	}
}

// pollBus drains every pending ToWork/ToRest message addressed to this
// core. On ToWork(k) it binds itself as consumer of sw-queue k and adds k
// to its active set. On ToRest(k) for an active queue it moves the slot to
// Draining and k to its draining set; producers may still enqueue until
// finishDraining frees the empty slot.
func (c *Core) pollBus() {
	for {
		msg, ok := c.bus.PollActivate(c.cfg.ID)
		if !ok {
			break
		}
		if c.swPool.ToWork(msg.QueueID, c.cfg.ID) {
			c.active[msg.QueueID] = struct{}{}
			delete(c.draining, msg.QueueID)
		}
	}
	for {
		msg, ok := c.bus.PollDeactivate(c.cfg.ID)
		if !ok {
			break
		}
		if _, bound := c.active[msg.QueueID]; bound && c.swPool.ToRest(msg.QueueID) {
			delete(c.active, msg.QueueID)
			c.draining[msg.QueueID] = struct{}{}
		}
	}
}

// drainQueue pulls and delivers up to cfg.Burst packets from qid, returning
// whether any work was done.
func (c *Core) drainQueue(qid int) bool {
	batch := make([]*api.Packet, c.cfg.Burst)
	n := c.swPool.DequeueBurst(qid, batch)
	if n == 0 {
		return false
	}
	c.deliver(batch[:n])
	return true
}

// finishDraining keeps pulling a Draining queue until empty, then commits
// Draining->Free.
func (c *Core) finishDraining(qid int) {
	c.drainQueue(qid)
	if c.swPool.FinishDrain(qid) {
		delete(c.draining, qid)
	}
}

func (c *Core) deliver(batch []*api.Packet) {
	if c.dispatcher == nil {
		for _, pkt := range batch {
			pkt.Free()
		}
		return
	}
	ctx := api.PipelineContext{NowNs: c.clk.NowNs(), CoreID: c.cfg.ID}
	c.dispatcher.ProcessBatch(ctx, batch)
}
