// File: internal/corestate/core.go
// Package corestate
// Author: momentics <momentics@gmail.com>
//
// CoreState: one per physical core slot, role {Normal, Reserved,
// Unused}, liveness_epochs, owned_buckets / target_owned_buckets. Role
// transitions happen only via CAS on a per-core atomic state word
// Role transitions happen only via CAS on a per-core atomic word. The
// owned-bucket collections are literal sets (mapset.Set[uint16]) rather
// than slices with manual dedup.

package corestate

import (
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
)

// Role enumerates a core slot's current duty.
type Role int32

const (
	RoleUnused Role = iota
	RoleNormal
	RoleReserved
)

func (r Role) String() string {
	switch r {
	case RoleNormal:
		return "Normal"
	case RoleReserved:
		return "Reserved"
	default:
		return "Unused"
	}
}

// LivenessConsolidationThreshold is the liveness bar, in long epochs,
// before a Normal core is eligible for consolidation.
const LivenessConsolidationThreshold = 4

// Core is one physical core slot's state.
type Core struct {
	ID int

	role atomic.Int32

	// LivenessEpochs counts consecutive long epochs this core has stayed
	// Normal and non-empty; reset to 0 when newly activated.
	LivenessEpochs atomic.Int32

	mu                sync.Mutex
	ownedBuckets      mapset.Set[uint16]
	targetOwnedBuckets mapset.Set[uint16]
}

// NewCore allocates a Core slot starting Unused with no owned buckets.
func NewCore(id int) *Core {
	return &Core{
		ID:                 id,
		ownedBuckets:       mapset.NewThreadUnsafeSet[uint16](),
		targetOwnedBuckets: mapset.NewThreadUnsafeSet[uint16](),
	}
}

// Role returns the core's current role.
func (c *Core) Role() Role { return Role(c.role.Load()) }

// CASRole attempts to transition role atomically, the only sanctioned
// way to change a core's role after startup.
func (c *Core) CASRole(from, to Role) bool {
	return c.role.CompareAndSwap(int32(from), int32(to))
}

// SetRole forcibly sets the role; used only at startup before any core
// goroutine is running.
func (c *Core) SetRole(r Role) { c.role.Store(int32(r)) }

// OwnedBuckets returns a snapshot slice of currently owned bucket indices.
func (c *Core) OwnedBuckets() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownedBuckets.ToSlice()
}

// OwnsBucket reports whether bucket i is currently owned by this core.
func (c *Core) OwnsBucket(i uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownedBuckets.ContainsOne(i)
}

// AddBucket / RemoveBucket mutate the owned-bucket set, called only by the
// Scheduler during a committed move.
func (c *Core) AddBucket(i uint16)    { c.mu.Lock(); c.ownedBuckets.Add(i); c.mu.Unlock() }
func (c *Core) RemoveBucket(i uint16) { c.mu.Lock(); c.ownedBuckets.Remove(i); c.mu.Unlock() }

// BucketCount returns the number of currently owned buckets.
func (c *Core) BucketCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownedBuckets.Cardinality()
}

// SetTargetBuckets stages the next assignment during a long-epoch
// transition, committed via CommitTarget once the drain protocol for
// every moved bucket completes.
func (c *Core) SetTargetBuckets(buckets []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetOwnedBuckets = mapset.NewThreadUnsafeSet[uint16](buckets...)
}

// CommitTarget replaces owned_buckets with target_owned_buckets.
func (c *Core) CommitTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownedBuckets = c.targetOwnedBuckets
	c.targetOwnedBuckets = mapset.NewThreadUnsafeSet[uint16]()
}

// Table is the fixed set of core slots.
type Table struct {
	Cores []*Core
}

// NewTable allocates n core slots, all Unused.
func NewTable(n int) *Table {
	t := &Table{Cores: make([]*Core, n)}
	for i := range t.Cores {
		t.Cores[i] = NewCore(i)
	}
	return t
}

// NormalCores returns the ids of every core currently in RoleNormal.
func (t *Table) NormalCores() []int {
	var out []int
	for _, c := range t.Cores {
		if c.Role() == RoleNormal {
			out = append(out, c.ID)
		}
	}
	return out
}

// CountByRole returns how many core slots currently hold role r.
func (t *Table) CountByRole(r Role) int {
	n := 0
	for _, c := range t.Cores {
		if c.Role() == r {
			n++
		}
	}
	return n
}
