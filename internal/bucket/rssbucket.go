// File: internal/bucket/rssbucket.go
// Package bucket
// Author: momentics <momentics@gmail.com>
//
// RssBucket is the Scheduler's per-bucket ownership record: owner core,
// epoch counters, and a nullable pending-move destination used during the
// drain protocol. Each bucket tracks its own owner directly rather than
// the inverse core-to-buckets map.

package bucket

import "sync/atomic"

// InvalidCore marks an RssBucket with no owner (mirrors api.InvalidCoreID).
const InvalidCore = -1

// Bucket is one of the 512 RSS bucket ownership records.
type Bucket struct {
	// OwnerCore is the Normal core id that currently owns this bucket, or
	// InvalidCore before initial placement.
	OwnerCore atomic.Int32

	// PacketCountEpoch / UniqueFlowCountEpoch mirror the per-epoch
	// aggregates surfaced through Stats for direct inspection by tests and
	// debug probes. The Scheduler zeroes PacketCountEpoch at each long-epoch
	// close; the owning core overwrites UniqueFlowCountEpoch every short
	// epoch.
	PacketCountEpoch     atomic.Uint64
	UniqueFlowCountEpoch atomic.Uint64

	// pendingMoveTo holds the destination core while the Scheduler commits
	// a move of this bucket: it is set before the RSS update and cleared
	// when ownership transfers or the move rolls back. The receive loops do
	// not consult it; packets that still reach the old owner are admitted
	// and processed as usual.
	pendingMoveTo atomic.Int32 // InvalidCore when no move pending
}

// Table is the fixed 512-entry array of RssBucket ownership records.
type Table struct {
	Buckets [NumBuckets]*Bucket
}

// NewTable allocates a Table with every bucket unowned.
func NewTable() *Table {
	t := &Table{}
	for i := range t.Buckets {
		b := &Bucket{}
		b.OwnerCore.Store(InvalidCore)
		b.pendingMoveTo.Store(InvalidCore)
		t.Buckets[i] = b
	}
	return t
}

// PendingMoveTo returns the bucket's in-flight destination core, and
// whether a move is pending.
func (b *Bucket) PendingMoveTo() (int, bool) {
	v := b.pendingMoveTo.Load()
	if v == InvalidCore {
		return 0, false
	}
	return int(v), true
}

// MarkPendingMove records the move's destination core until the move
// commits or rolls back.
func (b *Bucket) MarkPendingMove(newOwner int) {
	b.pendingMoveTo.Store(int32(newOwner))
}

// ClearPendingMove completes the move, transferring ownership and
// clearing the freeze.
func (b *Bucket) ClearPendingMove(newOwner int) {
	b.OwnerCore.Store(int32(newOwner))
	b.pendingMoveTo.Store(InvalidCore)
}
