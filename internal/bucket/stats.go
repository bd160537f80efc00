// File: internal/bucket/stats.go
// Package bucket
// Author: momentics <momentics@gmail.com>
//
// Stats is the global 512-entry per-bucket counter table. NormalCores
// write only the entries they own; the Scheduler reads the whole table
// once per long epoch. Per-bucket atomics stand in for a reader-writer
// lock so the per-packet hot path never takes one.

package bucket

import "sync/atomic"

// NumBuckets is the fixed RSS bucket count.
const NumBuckets = 512

// Counters holds one bucket's accumulated packet/flow counts for the
// current long epoch.
type Counters struct {
	PacketCount uint64
	FlowCount   uint64
}

type entry struct {
	packetCount atomic.Uint64
	flowCount   atomic.Uint64
}

// Stats is the fixed 512-entry global table.
type Stats struct {
	entries [NumBuckets]entry
}

// NewStats allocates a zeroed Stats table.
func NewStats() *Stats { return &Stats{} }

// AddPacket increments bucket i's packet counter by n. Called only by the
// NormalCore that owns bucket i.
func (s *Stats) AddPacket(i uint16, n uint64) {
	s.entries[i].packetCount.Add(n)
}

// SetFlowCount overwrites bucket i's unique-flow-count for the current
// epoch. Called only by the owning NormalCore.
func (s *Stats) SetFlowCount(i uint16, n uint64) {
	s.entries[i].flowCount.Store(n)
}

// Snapshot captures a consistent-enough view of all 512 buckets for the
// Scheduler's long-epoch decision: 512 records of {u64 packet_count,
// u64 flow_count}. When reset is true, packet counters are zeroed so the
// next long epoch accumulates fresh per-epoch rates; flow counters are
// left as the owning core's latest membership snapshot.
func (s *Stats) Snapshot(reset bool) [NumBuckets]Counters {
	var out [NumBuckets]Counters
	for i := range s.entries {
		if reset {
			out[i].PacketCount = s.entries[i].packetCount.Swap(0)
		} else {
			out[i].PacketCount = s.entries[i].packetCount.Load()
		}
		out[i].FlowCount = s.entries[i].flowCount.Load()
	}
	return out
}
