// File: internal/scheduler/ctrl_test.go
// Author: momentics <momentics@gmail.com>
//
// Long-epoch rebalance, consolidation, and RSS-rate-limit behavior against
// a recording NIC and a fake clock.

package scheduler

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/bucket"
	"github.com/momentics/nfvworker/internal/clock"
	"github.com/momentics/nfvworker/internal/corestate"
	"github.com/momentics/nfvworker/internal/flow"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/swqueue"
)

type recordingNic struct {
	updates []api.RssTable
}

func (n *recordingNic) Recv(int, []*api.Packet) (int, error)  { return 0, nil }
func (n *recordingNic) Send(int, []*api.Packet) (int, error)  { return 0, nil }
func (n *recordingNic) NowNs() (int64, bool)                  { return 0, false }
func (n *recordingNic) UpdateRss(table api.RssTable) error {
	n.updates = append(n.updates, table)
	return nil
}

type handle struct {
	id  int
	tbl *flow.Table
}

func (h *handle) ID() int               { return h.id }
func (h *handle) FlowTable() *flow.Table { return h.tbl }

type fixture struct {
	ctrl      *Ctrl
	clk       *clock.Fake
	nic       *recordingNic
	stats     *bucket.Stats
	buckets   *bucket.Table
	coreTable *corestate.Table
	mbus      *migrate.Bus
}

func newFixture(t *testing.T, nNormal int) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	allIDs := []int{0, 1, 2, 3, 4, 5, 6, 7}
	f := &fixture{
		clk:       clock.NewFake(0),
		nic:       &recordingNic{},
		stats:     bucket.NewStats(),
		buckets:   bucket.NewTable(),
		coreTable: corestate.NewTable(8),
		mbus:      migrate.NewBus(allIDs, 64),
	}
	profile := NewProfileCurve([]ProfilePoint{{FlowCount: 0, MaxPps: 1_000_000}})
	f.ctrl = New(f.coreTable, f.stats, f.buckets, swqueue.NewPool(4, 16),
		swqueue.NewBus(allIDs, 64), f.mbus, f.nic, f.clk, profile,
		1_000_000_000, nil, log)

	for id := 0; id < nNormal; id++ {
		f.coreTable.Cores[id].SetRole(corestate.RoleNormal)
		f.ctrl.RegisterNormalCore(&handle{id: id, tbl: flow.NewTable()})
	}
	return f
}

// assignRange gives core every bucket in [lo, hi).
func (f *fixture) assignRange(core int, lo, hi int) {
	for i := lo; i < hi; i++ {
		f.buckets.Buckets[i].ClearPendingMove(core)
		f.coreTable.Cores[core].AddBucket(uint16(i))
		f.ctrl.pushAdded(core, uint16(i))
	}
}

// loadRange spreads totalPackets evenly over buckets [lo, hi).
func (f *fixture) loadRange(lo, hi int, totalPackets uint64) {
	per := totalPackets / uint64(hi-lo)
	for i := lo; i < hi; i++ {
		f.stats.AddPacket(uint16(i), per)
	}
}

// requireOwnershipUnique asserts every owned bucket is claimed by exactly
// one Normal core's owned set, and that the bucket record agrees.
func requireOwnershipUnique(t *testing.T, f *fixture) {
	t.Helper()
	for i := 0; i < bucket.NumBuckets; i++ {
		owner := int(f.buckets.Buckets[i].OwnerCore.Load())
		if owner == bucket.InvalidCore {
			continue
		}
		claimants := 0
		for _, c := range f.coreTable.Cores {
			if c.OwnsBucket(uint16(i)) {
				claimants++
				require.Equal(t, owner, c.ID, "bucket %d claimed by %d but recorded owner is %d", i, c.ID, owner)
			}
		}
		require.Equal(t, 1, claimants, "bucket %d has %d claimants", i, claimants)
		require.Equal(t, corestate.RoleNormal, f.coreTable.Cores[owner].Role())
	}
}

func TestInitialPlacementCoversAllBuckets(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.ctrl.InitialPlacement())
	require.Len(t, f.nic.updates, 1)

	requireOwnershipUnique(t, f)
	table := f.nic.updates[0]
	for i := range table {
		require.Contains(t, []uint16{0, 1}, table[i])
	}
	require.Equal(t, 256, f.coreTable.Cores[0].BucketCount())
	require.Equal(t, 256, f.coreTable.Cores[1].BucketCount())
}

func TestLongEpochRebalanceMovesOverload(t *testing.T) {
	f := newFixture(t, 2)
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	f.loadRange(0, 256, 950_000)
	f.loadRange(256, 512, 100_000)

	f.ctrl.RunLongEpoch()

	require.Len(t, f.nic.updates, 1, "one rebalance, one RSS update")
	requireOwnershipUnique(t, f)
	require.Less(t, f.coreTable.Cores[0].BucketCount(), 256, "overloaded core must shed buckets")
	require.Greater(t, f.coreTable.Cores[1].BucketCount(), 256)

	// Shed rate brings core 0 under (1 - migrate_headroom) * capacity.
	perBucket := uint64(950_000 / 256)
	remaining := uint64(f.coreTable.Cores[0].BucketCount()) * perBucket
	require.Less(t, remaining, uint64(900_000))

	// Every moved bucket got a drain request to the old owner.
	moved := 256 - f.coreTable.Cores[0].BucketCount()
	drains := 0
	for {
		req, ok := f.mbus.PollDrainRequest(0)
		if !ok {
			break
		}
		require.Equal(t, 1, req.NewOwner)
		drains++
	}
	require.Equal(t, moved, drains)
}

func TestLongEpochConsolidation(t *testing.T) {
	f := newFixture(t, 2)
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	f.coreTable.Cores[0].LivenessEpochs.Store(5)
	f.coreTable.Cores[1].LivenessEpochs.Store(5)
	f.loadRange(0, 256, 400_000)
	f.loadRange(256, 512, 400_000)

	f.ctrl.RunLongEpoch()

	requireOwnershipUnique(t, f)
	emptied, kept := 0, 0
	for _, id := range []int{0, 1} {
		switch f.coreTable.Cores[id].Role() {
		case corestate.RoleUnused:
			emptied++
			require.Equal(t, 0, f.coreTable.Cores[id].BucketCount())
		case corestate.RoleNormal:
			kept++
			require.Equal(t, 512, f.coreTable.Cores[id].BucketCount())
		}
	}
	require.Equal(t, 1, emptied, "exactly one core consolidates away")
	require.Equal(t, 1, kept)
}

func TestConsolidationRollsBackWhenNothingFits(t *testing.T) {
	f := newFixture(t, 2)
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	f.coreTable.Cores[0].LivenessEpochs.Store(5)
	f.coreTable.Cores[1].LivenessEpochs.Store(5)
	// Both just under the overload bar; folding either onto the other
	// would exceed (1 - assign_headroom) * capacity.
	f.loadRange(0, 256, 700_000)
	f.loadRange(256, 512, 700_000)

	f.ctrl.RunLongEpoch()

	require.Equal(t, corestate.RoleNormal, f.coreTable.Cores[0].Role())
	require.Equal(t, corestate.RoleNormal, f.coreTable.Cores[1].Role())
	require.Equal(t, 256, f.coreTable.Cores[0].BucketCount())
	require.Equal(t, 256, f.coreTable.Cores[1].BucketCount())
}

func TestRebalanceNowHonorsRssRateLimit(t *testing.T) {
	f := newFixture(t, 2)
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	f.loadRange(0, 256, 950_000)

	f.ctrl.RunLongEpoch()
	require.Len(t, f.nic.updates, 1)

	// 1 ms later: an on-demand rebalance must not touch the NIC.
	f.clk.Advance(1_000_000)
	f.loadRange(0, 256, 1_200_000)
	f.ctrl.RebalanceNow(0)
	require.Len(t, f.nic.updates, 1, "no second update_rss within 5 ms")

	// 5 ms after the last update the deferred rebalance may proceed.
	f.clk.Advance(4_000_000)
	f.ctrl.RebalanceNow(0)
	require.Len(t, f.nic.updates, 2)
	requireOwnershipUnique(t, f)
}

func TestRebalanceActivatesUnusedCoreWhenNothingFits(t *testing.T) {
	f := newFixture(t, 2)
	// Core 2 is registered (has a receive loop) but stays Unused.
	f.ctrl.RegisterNormalCore(&handle{id: 2, tbl: flow.NewTable()})
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	f.loadRange(0, 256, 950_000)
	f.loadRange(256, 512, 790_000) // nearly at the assign-headroom bar

	f.ctrl.RunLongEpoch()

	require.Equal(t, corestate.RoleNormal, f.coreTable.Cores[2].Role(),
		"spare core must be activated when no existing core fits")
	require.Greater(t, f.coreTable.Cores[2].BucketCount(), 0)
	requireOwnershipUnique(t, f)
}

func TestCheckInvariantsDetectsDoubleClaim(t *testing.T) {
	f := newFixture(t, 2)
	f.assignRange(0, 0, 256)
	f.assignRange(1, 256, 512)
	require.Nil(t, f.ctrl.CheckInvariants())

	// Corrupt: core 1 also claims bucket 0.
	f.coreTable.Cores[1].AddBucket(0)
	// Also flip the ownership record to a core that never claimed the
	// bucket, so the record itself is inconsistent as well.
	f.buckets.Buckets[0].OwnerCore.Store(3)
	f.coreTable.Cores[3].SetRole(corestate.RoleNormal)

	err := f.ctrl.CheckInvariants()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "invariant violation")
	require.NotNil(t, err.Context["dump"], "violation must carry a diagnostic dump")
}
