// File: internal/normalcore/core.go
// Package normalcore
// Author: momentics <momentics@gmail.com>
//
// NormalCore is the per-core receive/admission loop: a plain loop with
// explicit phases (Recv, Admit, Process, EpochClose) on a single
// goroutine that exclusively owns its FlowTable and local ring.

package normalcore

import (
	"context"
	"sync/atomic"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/bucket"
	"github.com/momentics/nfvworker/internal/clock"
	"github.com/momentics/nfvworker/internal/concurrency"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/flow"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/swqueue"
)

// runState is the core's single enum-valued lifecycle atomic; only the
// core itself advances it in response to a Disable request.
type runState int32

const (
	stateRunning runState = iota
	stateDraining
	stateDrained
)

// Core is one NormalCore: single-threaded, owns its FlowTable and local
// ring exclusively.
type Core struct {
	cfg Config

	nic        api.NicAdapter
	flowTable  *flow.Table
	localRing  *concurrency.RingBuffer[*api.Packet]
	boostRing  *concurrency.RingBuffer[*api.Packet]
	inBoost    bool

	swPool      *swqueue.Pool
	directory   api.ReservedCoreDirectory
	migrateBus  *migrate.Bus

	stats      *bucket.Stats
	bucketOwn  *bucket.Table
	dispatcher api.NFHandler
	metrics    *control.MetricsRegistry

	clk    api.Clock
	ticker *clock.EpochTicker
	parser *parser

	// epochFlowCache holds every flow touched this short epoch; the
	// admission algorithm skips entries whose offload target is no longer
	// None, so the rest form its unoffload_flows input.
	epochFlowCache map[flow.Key]*flow.State
	// epochFlowOrder preserves first-touch order within epochFlowCache,
	// giving the admission algorithm a deterministic iteration order.
	epochFlowOrder []flow.Key

	// ownedSwQueues are sw-queue ids this core currently owns as
	// producer (Claimed or Active on its behalf).
	ownedSwQueues []int

	numEpochWithLargeQueue uint32
	pullVolumeThisPass     int

	state atomic.Int32

	// clearPending and burstOverride carry the CommandClear/CommandSetBurst
	// style runtime commands; they are only ever consumed by the core's own
	// goroutine at the top of a pass, so the FlowTable stays single-writer.
	clearPending  atomic.Bool
	burstOverride atomic.Int32
}

// New constructs a NormalCore. directory and dispatcher may be swapped
// later via SetDirectory/SetDispatcher once the Runtime finishes wiring
// (the Scheduler that implements ReservedCoreDirectory is built after
// the core pool in most wiring orders).
func New(cfg Config, nic api.NicAdapter, swPool *swqueue.Pool, stats *bucket.Stats,
	bucketOwn *bucket.Table, clk api.Clock, metrics *control.MetricsRegistry) *Core {
	c := &Core{
		cfg:            cfg,
		nic:            nic,
		flowTable:      flow.NewTable(),
		localRing:      concurrency.NewRingBuffer[*api.Packet](cfg.LocalRingCapacity),
		boostRing:      concurrency.NewRingBuffer[*api.Packet](cfg.LocalRingCapacity),
		swPool:         swPool,
		stats:          stats,
		bucketOwn:      bucketOwn,
		metrics:        metrics,
		clk:            clk,
		ticker:         clock.NewEpochTicker(clk, cfg.ShortEpochNs, clock.DefaultLongEpochNs),
		parser:         newParser(),
		epochFlowCache: make(map[flow.Key]*flow.State),
	}
	return c
}

// SetDirectory wires the Scheduler-backed ReservedCoreDirectory used to
// request/release reserved-core activation.
func (c *Core) SetDirectory(d api.ReservedCoreDirectory) { c.directory = d }

// SetMigrateBus wires the Scheduler-backed bucket drain/handoff transport
// used by the move commit protocol.
func (c *Core) SetMigrateBus(b *migrate.Bus) { c.migrateBus = b }

// SetDispatcher wires the downstream NF handoff.
func (c *Core) SetDispatcher(d api.NFHandler) { c.dispatcher = d }

// FlowTable exposes the core's FlowTable for the migration protocol and
// tests.
func (c *Core) FlowTable() *flow.Table { return c.flowTable }

// ID returns the core's id.
func (c *Core) ID() int { return c.cfg.CoreID }

// Disable requests a graceful shutdown: the core finishes its current
// batch then transitions Running->Draining->Drained.
func (c *Core) Disable() {
	c.state.CompareAndSwap(int32(stateRunning), int32(stateDraining))
}

// Drained reports whether the core has finished shutting down.
func (c *Core) Drained() bool { return runState(c.state.Load()) == stateDrained }

// Run drives the receive/admission loop until ctx is canceled or Disable
// is called. Each iteration is one RunOnce pass; Run never blocks beyond
// what RunOnce itself does (non-blocking NIC/ring calls only).
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(stateDrained))
			return
		default:
		}
		if runState(c.state.Load()) == stateDraining {
			c.RunOnce()
			c.state.Store(int32(stateDrained))
			return
		}
		c.RunOnce()
	}
}

// Clear requests that the core drop all per-flow state and queued packets
// at the start of its next pass.
func (c *Core) Clear() { c.clearPending.Store(true) }

// SetBurst adjusts the per-batch packet budget live. Values <= 0 restore
// the configured default.
func (c *Core) SetBurst(n int) { c.burstOverride.Store(int32(n)) }

func (c *Core) burst() int {
	if n := c.burstOverride.Load(); n > 0 {
		return int(n)
	}
	return c.cfg.Burst
}

// applyClear empties the local and boost rings (freeing their packets) and
// resets all flow state, running on the core's own goroutine.
func (c *Core) applyClear() {
	var pkt *api.Packet
	var ok bool
	for pkt, ok = c.localRing.Dequeue(); ok; pkt, ok = c.localRing.Dequeue() {
		pkt.Free()
	}
	for pkt, ok = c.boostRing.Dequeue(); ok; pkt, ok = c.boostRing.Dequeue() {
		pkt.Free()
	}
	c.flowTable.Clear()
	c.epochFlowCache = make(map[flow.Key]*flow.State)
	c.epochFlowOrder = c.epochFlowOrder[:0]
	c.numEpochWithLargeQueue = 0
	c.inBoost = false
}

// RunOnce executes one pass of Recv -> Admit(epoch-gated) -> Process ->
// EpochClose.
func (c *Core) RunOnce() {
	if c.clearPending.CompareAndSwap(true, false) {
		c.applyClear()
	}
	c.pull()
	c.processLocal()
	if c.ticker.ShortEpochDue() {
		c.closeShortEpoch()
	}
}

// pull drains up to PullBatches batches of Burst from the NIC, parses
// L2/L3/L4, resolves the FlowKey, and routes each packet.
func (c *Core) pull() {
	buf := make([]*api.Packet, c.burst())
	c.pullVolumeThisPass = 0
	for i := 0; i < c.cfg.PullBatches; i++ {
		n, err := c.nic.Recv(c.cfg.Qid, buf)
		if err != nil || n == 0 {
			break
		}
		c.pullVolumeThisPass += n
		for _, pkt := range buf[:n] {
			c.admitPacket(pkt)
		}
	}
	if c.pullVolumeThisPass >= c.cfg.BoostBusyThreshold || c.localRing.Len() >= c.cfg.LargeQueueThresh {
		c.inBoost = true
	}
}

// admitPacket parses one packet, resolves or creates its flow state, and
// hands off to routePacket.
func (c *Core) admitPacket(pkt *api.Packet) {
	key, ok := c.parser.parseFlowKey(pkt.Buf.Data)
	if !ok {
		// Non-L4 traffic is freed outright; not one of the counted drop
		// classes.
		pkt.Free()
		return
	}
	state, found := c.flowTable.Lookup(key)
	if !found {
		rssBucket := key.RssBucket(c.cfg.RssSize)
		state = flow.NewState(key, rssBucket)
		c.flowTable.Insert(key, state)
	}
	pkt.RssBucket = state.RssBucket
	pkt.FlowSlot = state.Slot
	if _, seen := c.epochFlowCache[key]; !seen {
		c.epochFlowOrder = append(c.epochFlowOrder, key)
	}
	c.epochFlowCache[key] = state
	state.ShortEpochCount++
	c.routePacket(pkt, state)
}

// routePacket dispatches one arriving packet by its flow's offload
// target.
func (c *Core) routePacket(pkt *api.Packet, state *flow.State) {
	switch state.Offload.Kind {
	case flow.TargetNone:
		if c.localRing.Enqueue(pkt) {
			state.IngressCount++
			state.Queued++
		} else {
			c.countAndDrop(pkt, api.DropLocalQueueOverflow)
		}
	case flow.TargetDumpNoRoom:
		c.accountEgressIfPending(state)
		c.countAndDrop(pkt, api.DropNoRoom)
	case flow.TargetDumpSuperFlow:
		c.accountEgressIfPending(state)
		c.countAndDrop(pkt, api.DropSuperFlow)
	case flow.TargetSwQueue:
		slot := c.swPool.Slot(state.Offload.QueueID)
		if slot == nil {
			state.Offload = flow.None
			c.countAndDrop(pkt, api.DropStaleOffload)
			return
		}
		if _, hasConsumer := slot.ConsumerCore(); !hasConsumer {
			// The queue lost (or never gained) its consumer: drop and reset
			// the offload so the next epoch's admission re-places the flow.
			state.Offload = flow.None
			c.accountEgressIfPending(state)
			c.countAndDrop(pkt, api.DropStaleOffload)
			return
		}
		if c.swPool.EnqueueBurst(state.Offload.QueueID, []*api.Packet{pkt}, func(p *api.Packet) {
			c.countAndDrop(p, api.DropLocalQueueOverflow)
		}) > 0 {
			state.IngressCount++
			state.EgressCount++
		}
	}
}

// accountEgressIfPending keeps ingress >= egress on drop paths.
func (c *Core) accountEgressIfPending(state *flow.State) {
	state.IngressCount++
	if state.IngressCount > state.EgressCount {
		state.EgressCount++
	}
}

func (c *Core) countAndDrop(pkt *api.Packet, class api.DropClass) {
	if c.metrics != nil {
		c.metrics.IncDrop(class)
	}
	pkt.Free()
}

// processLocal dequeues batches from the local ring and calls the
// downstream NF, diverting through the boost ring while in boost.
func (c *Core) processLocal() {
	batch := make([]*api.Packet, c.burst())
	for c.localRing.Len() > 0 {
		if c.inBoost {
			c.processBoostBatch()
			if c.localRing.Len() < c.cfg.LargeQueueThresh/2 {
				c.inBoost = false
			}
			return
		}
		n := c.localRing.DrainInto(batch)
		if n == 0 {
			return
		}
		c.deliverBatch(batch[:n])
	}
}

// processBoostBatch diverts one batch to the dedicated boost ring and
// processes it there.
func (c *Core) processBoostBatch() {
	batch := make([]*api.Packet, c.burst())
	n := c.localRing.DrainInto(batch)
	if n == 0 {
		return
	}
	for _, pkt := range batch[:n] {
		c.boostRing.Enqueue(pkt)
	}
	boosted := c.boostRing.DrainInto(batch)
	c.deliverBatch(batch[:boosted])
}

func (c *Core) deliverBatch(batch []*api.Packet) {
	if c.dispatcher == nil {
		for _, pkt := range batch {
			pkt.Free()
		}
		return
	}
	ctx := api.PipelineContext{NowNs: c.clk.NowNs(), CoreID: c.cfg.CoreID}
	c.dispatcher.ProcessBatch(ctx, batch)
	for _, pkt := range batch {
		// Flow state is found by the arena index stamped on the packet
		// during admission; no second FlowKey hash.
		if state := c.flowTable.StateBySlot(pkt.FlowSlot); state != nil {
			state.EgressCount++
			if state.Queued > 0 {
				state.Queued--
			}
		}
		c.stats.AddPacket(pkt.RssBucket, 1)
		c.bucketOwn.Buckets[pkt.RssBucket].PacketCountEpoch.Add(1)
	}
}
