// File: internal/migrate/bus.go
// Package migrate
// Author: momentics <momentics@gmail.com>
//
// Bus carries the two legs of the bucket move commit protocol: a
// DrainRequest from the Scheduler telling
// the old owner which bucket to hand off once its draining grace period
// elapses, and a Handoff carrying the drained FlowStates from old owner to
// new owner. Both legs are modeled as per-core MPSC rings, the same shape
// as swqueue.Bus's to_activate/to_deactivate pair, since FlowTable remains
// single-writer/single-reader and can only be read or written by
// its owning NormalCore's own goroutine; the Scheduler never touches a
// FlowTable directly.

package migrate

import (
	"github.com/momentics/nfvworker/internal/concurrency"
	"github.com/momentics/nfvworker/internal/flow"
)

// DrainRequest asks the addressed NormalCore to detach bucket's flows and
// hand them to newOwner once its current epoch closes.
type DrainRequest struct {
	Bucket   uint16
	NewOwner int
}

// Handoff carries one bucket's drained flow states to their new owner.
type Handoff struct {
	Bucket uint16
	States []*flow.State
	From   int
}

// Bus holds one DrainRequest ring and one Handoff ring per core.
type Bus struct {
	requests map[int]*concurrency.MPSCQueue[DrainRequest]
	handoffs map[int]*concurrency.MPSCQueue[Handoff]
}

// NewBus allocates rings for every core id in coreIDs.
func NewBus(coreIDs []int, capacity int) *Bus {
	b := &Bus{
		requests: make(map[int]*concurrency.MPSCQueue[DrainRequest], len(coreIDs)),
		handoffs: make(map[int]*concurrency.MPSCQueue[Handoff], len(coreIDs)),
	}
	for _, id := range coreIDs {
		b.requests[id] = concurrency.NewMPSCQueue[DrainRequest](capacity)
		b.handoffs[id] = concurrency.NewMPSCQueue[Handoff](capacity)
	}
	return b
}

// RequestDrain asks coreID (the current owner) to drain req.Bucket
// (called by the Scheduler only).
func (b *Bus) RequestDrain(coreID int, req DrainRequest) bool {
	q, ok := b.requests[coreID]
	if !ok {
		return false
	}
	return q.Enqueue(req)
}

// PollDrainRequest is called by coreID's own goroutine to fetch its next
// pending drain request, if any.
func (b *Bus) PollDrainRequest(coreID int) (DrainRequest, bool) {
	q, ok := b.requests[coreID]
	if !ok {
		return DrainRequest{}, false
	}
	return q.Dequeue()
}

// SendHandoff is called by the old owner's own goroutine to hand drained
// states to toCore.
func (b *Bus) SendHandoff(toCore int, h Handoff) bool {
	q, ok := b.handoffs[toCore]
	if !ok {
		return false
	}
	return q.Enqueue(h)
}

// PollHandoff is called by coreID's own goroutine to fetch its next
// incoming handoff, if any.
func (b *Bus) PollHandoff(coreID int) (Handoff, bool) {
	q, ok := b.handoffs[coreID]
	if !ok {
		return Handoff{}, false
	}
	return q.Dequeue()
}
