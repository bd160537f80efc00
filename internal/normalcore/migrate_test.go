// File: internal/normalcore/migrate_test.go
// Author: momentics <momentics@gmail.com>
//
// The per-core half of the bucket move commit protocol: honoring drain
// requests and absorbing handoffs at epoch close.

package normalcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/bucket"
	"github.com/momentics/nfvworker/internal/clock"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/flow"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/nic"
	"github.com/momentics/nfvworker/internal/swqueue"
)

func TestBucketDrainHandsFlowsToNewOwner(t *testing.T) {
	clk := clock.NewFake(0)
	adapter := nic.NewFakeAdapter(2, 4096)
	stats := bucket.NewStats()
	buckets := bucket.NewTable()
	pool := swqueue.NewPool(2, 64)
	met := control.NewMetricsRegistry(prometheus.NewRegistry())
	mbus := migrate.NewBus([]int{0, 1}, 16)

	mkCore := func(id int) *Core {
		cfg := DefaultConfig(id, id)
		c := New(cfg, adapter, pool, stats, buckets, clk, met)
		c.SetMigrateBus(mbus)
		c.SetDispatcher(&countingNF{})
		return c
	}
	oldOwner := mkCore(0)
	newOwner := mkCore(1)

	// Seed the old owner with flows, then learn which bucket one of them
	// hashed into.
	for port := uint16(7000); port < 7008; port++ {
		adapter.Inject(0, []*api.Packet{tcpPacket(t, port)})
	}
	oldOwner.pull()
	oldOwner.processLocal()
	key := flow.NewKey([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 6, 7000, 80)
	st, ok := oldOwner.FlowTable().Lookup(key)
	require.True(t, ok)
	target := st.RssBucket
	movedFlows := oldOwner.FlowTable().BucketFlowCount(target)
	require.Greater(t, movedFlows, 0)
	totalBefore := oldOwner.FlowTable().Len()

	// Scheduler leg: request the drain toward core 1.
	require.True(t, mbus.RequestDrain(0, migrate.DrainRequest{Bucket: target, NewOwner: 1}))

	clk.Advance(oldOwner.cfg.ShortEpochNs)
	oldOwner.closeShortEpoch()
	require.Equal(t, totalBefore-movedFlows, oldOwner.FlowTable().Len(),
		"drained flows must leave the old owner")

	clk.Advance(newOwner.cfg.ShortEpochNs)
	newOwner.closeShortEpoch()
	require.Equal(t, movedFlows, newOwner.FlowTable().Len(),
		"handoff must arrive intact at the new owner")
	require.Equal(t, movedFlows, newOwner.FlowTable().BucketFlowCount(target))
}
