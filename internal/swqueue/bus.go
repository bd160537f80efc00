// File: internal/swqueue/bus.go
// Package swqueue
// Author: momentics <momentics@gmail.com>
//
// Bus is the RuntimeBus: lock-free control messages "activate rcore on
// queue Q" / "release Q", carried on a pair of multi-producer/
// single-consumer rings per ReservedCore. The two directions are separate
// rings so a release can never overtake a pending activation for a
// different queue.

package swqueue

import "github.com/momentics/nfvworker/internal/concurrency"

// Message carries a sw-queue id for a RuntimeBus control notification.
type Message struct {
	QueueID int
}

// Bus holds one to_activate / to_deactivate MPSC ring per ReservedCore.
// Any NormalCore or the Scheduler may enqueue (multi-producer); only the
// addressed ReservedCore dequeues its own pair (single-consumer).
type Bus struct {
	toActivate   map[int]*concurrency.MPSCQueue[Message]
	toDeactivate map[int]*concurrency.MPSCQueue[Message]
}

// NewBus allocates rings for each reserved core id in reservedCoreIDs.
func NewBus(reservedCoreIDs []int, capacity int) *Bus {
	b := &Bus{
		toActivate:   make(map[int]*concurrency.MPSCQueue[Message], len(reservedCoreIDs)),
		toDeactivate: make(map[int]*concurrency.MPSCQueue[Message], len(reservedCoreIDs)),
	}
	for _, id := range reservedCoreIDs {
		b.toActivate[id] = concurrency.NewMPSCQueue[Message](capacity)
		b.toDeactivate[id] = concurrency.NewMPSCQueue[Message](capacity)
	}
	return b
}

// ToWork notifies reservedCore to start draining queueID
// for a ReservedCore").
func (b *Bus) ToWork(reservedCore, queueID int) bool {
	q, ok := b.toActivate[reservedCore]
	if !ok {
		return false
	}
	return q.Enqueue(Message{QueueID: queueID})
}

// ToRest notifies reservedCore to stop draining queueID
//").
func (b *Bus) ToRest(reservedCore, queueID int) bool {
	q, ok := b.toDeactivate[reservedCore]
	if !ok {
		return false
	}
	return q.Enqueue(Message{QueueID: queueID})
}

// PollActivate is called by reservedCore's own goroutine to fetch its next
// ToWork message, if any.
func (b *Bus) PollActivate(reservedCore int) (Message, bool) {
	q, ok := b.toActivate[reservedCore]
	if !ok {
		return Message{}, false
	}
	return q.Dequeue()
}

// PollDeactivate is called by reservedCore's own goroutine to fetch its
// next ToRest message, if any.
func (b *Bus) PollDeactivate(reservedCore int) (Message, bool) {
	q, ok := b.toDeactivate[reservedCore]
	if !ok {
		return Message{}, false
	}
	return q.Dequeue()
}
