// File: internal/swqueue/pool.go
// Package swqueue
// Author: momentics <momentics@gmail.com>
//
// Pool is a fixed-size set of SPSC packet rings shared between
// NormalCores (producers) and ReservedCores (consumers). The pool, not
// the cores, owns the ring storage; cores hold only a queue id and every
// lifecycle transition is a CAS on the slot's state word.

package swqueue

import (
	"sync/atomic"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/concurrency"
)

// State is the sw-queue state machine position:
// Free -> Claimed(prod) -> Active(prod,cons) -> Draining(prod,cons) -> Free.
type State int32

const (
	Free State = iota
	Claimed
	Active
	Draining
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Claimed:
		return "Claimed"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	default:
		return "Unknown"
	}
}

// noCore marks an unbound producer/consumer core slot.
const noCore = -1

// Slot is one SwQueueState entry.
type Slot struct {
	ID   int
	ring *concurrency.RingBuffer[*api.Packet]

	producerCore atomic.Int32
	consumerCore atomic.Int32
	idleEpochs   atomic.Int32

	assignedPackets  atomic.Uint64
	processedPackets atomic.Uint64

	stateWord atomic.Int32
}

// Ring exposes the slot's backing ring for enqueue/dequeue by the bound
// producer/consumer core only.
func (s *Slot) Ring() *concurrency.RingBuffer[*api.Packet] { return s.ring }

// State returns the slot's current lifecycle state.
func (s *Slot) State() State { return State(s.stateWord.Load()) }

// ProducerCore returns the bound producer core id, or false if unbound.
func (s *Slot) ProducerCore() (int, bool) {
	v := s.producerCore.Load()
	return int(v), v != noCore
}

// ConsumerCore returns the bound consumer core id, or false if unbound.
func (s *Slot) ConsumerCore() (int, bool) {
	v := s.consumerCore.Load()
	return int(v), v != noCore
}

// IdleEpochs returns the consecutive-epochs-with-no-enqueue counter, or -1
// while the slot is Free.
func (s *Slot) IdleEpochs() int32 { return s.idleEpochs.Load() }

// AssignedPackets / ProcessedPackets expose the producer/consumer
// bookkeeping counters.
func (s *Slot) AssignedPackets() uint64  { return s.assignedPackets.Load() }
func (s *Slot) ProcessedPackets() uint64 { return s.processedPackets.Load() }

// Pool is the fixed-size set of sw-queue slots (typical size 40).
type Pool struct {
	slots []*Slot
}

// NewPool allocates size slots, each with a ring of the given capacity.
// Capacity must be a power of two; config validation rejects anything
// else before a pool is ever built.
func NewPool(size int, ringCapacity uint64) *Pool {
	slots := make([]*Slot, size)
	for i := range slots {
		s := &Slot{ID: i, ring: concurrency.NewRingBuffer[*api.Packet](ringCapacity)}
		s.producerCore.Store(noCore)
		s.consumerCore.Store(noCore)
		s.idleEpochs.Store(-1)
		slots[i] = s
	}
	return &Pool{slots: slots}
}

// Size returns the pool's fixed slot count.
func (p *Pool) Size() int { return len(p.slots) }

// Slot returns slot id, or nil if out of range.
func (p *Pool) Slot(id int) *Slot {
	if id < 0 || id >= len(p.slots) {
		return nil
	}
	return p.slots[id]
}

// Claim finds a Free slot and transitions it to Claimed(prod), returning
// its id. Called by a NormalCore during admission.
func (p *Pool) Claim(producerCore int) (int, bool) {
	for _, s := range p.slots {
		if s.stateWord.CompareAndSwap(int32(Free), int32(Claimed)) {
			s.producerCore.Store(int32(producerCore))
			s.consumerCore.Store(noCore)
			s.idleEpochs.Store(0)
			s.assignedPackets.Store(0)
			s.processedPackets.Store(0)
			return s.ID, true
		}
	}
	return 0, false
}

// Release returns a Claimed (not-yet-Active) slot directly to Free,
// e.g. when the producer that claimed it never ends up needing it
//").
func (p *Pool) Release(id int) bool {
	s := p.Slot(id)
	if s == nil {
		return false
	}
	if s.stateWord.CompareAndSwap(int32(Claimed), int32(Free)) {
		s.producerCore.Store(noCore)
		s.idleEpochs.Store(-1)
		return true
	}
	return false
}

// ToWork binds a ReservedCore as consumer and transitions Claimed->Active
// message it binds consumer_core ... and
// starts draining").
func (p *Pool) ToWork(id, reservedCore int) bool {
	s := p.Slot(id)
	if s == nil {
		return false
	}
	if s.stateWord.CompareAndSwap(int32(Claimed), int32(Active)) {
		s.consumerCore.Store(int32(reservedCore))
		return true
	}
	return false
}

// ToRest transitions Active->Draining; the bound ReservedCore finishes any
// batch in flight then calls FinishDrain once the ring is empty.
func (p *Pool) ToRest(id int) bool {
	s := p.Slot(id)
	if s == nil {
		return false
	}
	return s.stateWord.CompareAndSwap(int32(Active), int32(Draining))
}

// FinishDrain completes Draining->Free once the consumer observes the
// release message and the ring is empty.
func (p *Pool) FinishDrain(id int) bool {
	s := p.Slot(id)
	if s == nil {
		return false
	}
	if s.ring.Len() != 0 {
		return false
	}
	if s.stateWord.CompareAndSwap(int32(Draining), int32(Free)) {
		s.producerCore.Store(noCore)
		s.consumerCore.Store(noCore)
		s.idleEpochs.Store(-1)
		return true
	}
	return false
}

// EnqueueBurst pushes items into slot id's ring, handing any overflow to
// onDrop for freeing and accounting.
func (p *Pool) EnqueueBurst(id int, pkts []*api.Packet, onDrop func(*api.Packet)) int {
	s := p.Slot(id)
	if s == nil {
		for _, pkt := range pkts {
			onDrop(pkt)
		}
		return 0
	}
	queued := 0
	for _, pkt := range pkts {
		if s.ring.Enqueue(pkt) {
			queued++
		} else {
			onDrop(pkt)
		}
	}
	s.assignedPackets.Add(uint64(queued))
	if queued > 0 {
		s.idleEpochs.Store(0)
	}
	return queued
}

// DequeueBurst pops up to len(out) items from slot id's ring, returning the
// count popped. Called only by the bound consumer core.
func (p *Pool) DequeueBurst(id int, out []*api.Packet) int {
	s := p.Slot(id)
	if s == nil {
		return 0
	}
	n := s.ring.DrainInto(out)
	if n > 0 {
		s.processedPackets.Add(uint64(n))
	}
	return n
}

// TickIdle increments slot id's idle-epoch counter by one; EnqueueBurst
// resets it to 0 whenever it queues at least one packet, so after a tick
// the value counts the epoch closes since the last enqueue. Returns the
// updated value.
func (p *Pool) TickIdle(id int) int32 {
	s := p.Slot(id)
	if s == nil {
		return -1
	}
	return s.idleEpochs.Add(1)
}

// IdleDrainThreshold is the consecutive-idle-epoch threshold after which a
// claimed/active slot should be released.
const IdleDrainThreshold = 100
