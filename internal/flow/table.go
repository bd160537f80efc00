// File: internal/flow/table.go
// Package flow
// Author: momentics <momentics@gmail.com>
//
// Table is the per-NormalCore FlowTable: a single-writer/single-reader
// structure owned exclusively by one core, so no locking is used. Cores
// never share mutable state outside lock-free rings and atomics, and a
// single deterministic map keyed by FlowKey covers every lookup role, so
// Go's built-in map is used directly rather than hand-rolling one.

package flow

// Table is the per-core 5-tuple -> *State map with an RSS-bucket reverse
// index, used to implement DrainBucket for the scheduler's move protocol
// The table keeps an RSS-bucket reverse index for DrainBucket, used by
// the bucket move protocol. A parallel arena (`slots`) gives every live flow a stable
// int32 index, mirrored onto packets as FlowSlot so the hot path looks up
// flow state by array index instead of hashing a FlowKey a second time.
type Table struct {
	flows     map[Key]*State
	byBucket  map[uint16]map[Key]*State
	slots     []*State
	freeSlots []int32
}

// NewTable allocates an empty FlowTable.
func NewTable() *Table {
	return &Table{
		flows:    make(map[Key]*State),
		byBucket: make(map[uint16]map[Key]*State),
	}
}

// Lookup returns the flow's state and whether it was present.
func (t *Table) Lookup(key Key) (*State, bool) {
	s, ok := t.flows[key]
	return s, ok
}

// StateBySlot returns the flow state at arena index slot, or nil if the
// slot is stale (the flow was erased since the packet carrying it was
// admitted).
func (t *Table) StateBySlot(slot int32) *State {
	if slot < 0 || int(slot) >= len(t.slots) {
		return nil
	}
	return t.slots[slot]
}

func (t *Table) allocSlot(state *State) int32 {
	if n := len(t.freeSlots); n > 0 {
		idx := t.freeSlots[n-1]
		t.freeSlots = t.freeSlots[:n-1]
		t.slots[idx] = state
		return idx
	}
	t.slots = append(t.slots, state)
	return int32(len(t.slots) - 1)
}

// Insert adds or replaces a flow's state, maintaining the bucket index and
// arena slot.
func (t *Table) Insert(key Key, state *State) {
	if old, ok := t.flows[key]; ok {
		if old.RssBucket != state.RssBucket {
			t.removeFromBucket(old.RssBucket, key)
		}
		state.Slot = old.Slot
		t.slots[state.Slot] = state
	} else {
		state.Slot = t.allocSlot(state)
	}
	t.flows[key] = state
	bucket := t.byBucket[state.RssBucket]
	if bucket == nil {
		bucket = make(map[Key]*State)
		t.byBucket[state.RssBucket] = bucket
	}
	bucket[key] = state
}

// Erase removes a flow entirely, as happens when the per-core table is
// cleared or after a completed bucket drain.
func (t *Table) Erase(key Key) {
	state, ok := t.flows[key]
	if !ok {
		return
	}
	delete(t.flows, key)
	t.removeFromBucket(state.RssBucket, key)
	t.slots[state.Slot] = nil
	t.freeSlots = append(t.freeSlots, state.Slot)
}

func (t *Table) removeFromBucket(bucket uint16, key Key) {
	if m, ok := t.byBucket[bucket]; ok {
		delete(m, key)
		if len(m) == 0 {
			delete(t.byBucket, bucket)
		}
	}
}

// DrainBucket detaches and returns every flow whose RssBucket == i,
// removing them from the table so they can be handed to the
// scheduler-mediated migration protocol.
func (t *Table) DrainBucket(i uint16) []*State {
	bucket, ok := t.byBucket[i]
	if !ok || len(bucket) == 0 {
		return nil
	}
	out := make([]*State, 0, len(bucket))
	for key, state := range bucket {
		out = append(out, state)
		delete(t.flows, key)
		t.slots[state.Slot] = nil
		t.freeSlots = append(t.freeSlots, state.Slot)
	}
	delete(t.byBucket, i)
	return out
}

// Len returns the total number of tracked flows.
func (t *Table) Len() int { return len(t.flows) }

// BucketFlowCount returns the number of flows currently owned for bucket i,
// used to populate BucketStats.flow_count.
func (t *Table) BucketFlowCount(i uint16) int { return len(t.byBucket[i]) }

// Clear empties the table, backing the runtime's clear-core command.
func (t *Table) Clear() {
	t.flows = make(map[Key]*State)
	t.byBucket = make(map[uint16]map[Key]*State)
	t.slots = nil
	t.freeSlots = nil
}

// ForEach iterates all tracked flows in unspecified order. The callback
// must not mutate the table.
func (t *Table) ForEach(fn func(Key, *State)) {
	for k, v := range t.flows {
		fn(k, v)
	}
}
