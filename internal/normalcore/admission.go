// File: internal/normalcore/admission.go
// Package normalcore
// Author: momentics <momentics@gmail.com>
//
// Short-term epoch close: first-fit admission packing, the local-ring
// split, sw-queue servicing, and the migration legs.

package normalcore

import (
	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/flow"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/swqueue"
)

// closeShortEpoch runs the full short-epoch-close sequence: migration,
// admission, split, queue servicing, stats publication, epoch reset.
func (c *Core) closeShortEpoch() {
	c.pollMigration()
	c.runAdmission()
	c.splitLocalRingToSwQueues()
	c.serviceOwnedQueues()

	if c.localRing.Len() >= c.cfg.LargeQueueThresh {
		c.numEpochWithLargeQueue++
	} else {
		c.numEpochWithLargeQueue = 0
	}
	if c.numEpochWithLargeQueue > 1 && c.directory != nil {
		c.directory.RebalanceNow(c.cfg.CoreID)
	}

	c.publishBucketFlowCounts()

	for _, key := range c.epochFlowOrder {
		if state := c.epochFlowCache[key]; state != nil {
			state.ResetEpoch()
		}
	}
	c.epochFlowCache = make(map[flow.Key]*flow.State)
	c.epochFlowOrder = c.epochFlowOrder[:0]

	c.ticker.CloseShortEpoch()
	if c.metrics != nil {
		c.metrics.EpochID.Set(float64(c.ticker.EpochID()))
	}
}

// runAdmission implements the first-fit packing algorithm:
// every flow still targeting None is kept local while the core has budget,
// otherwise packed onto an owned sw-queue with spare room, a freshly
// claimed one, or dumped.
func (c *Core) runAdmission() {
	// localAssigned accumulates the backlog of flows this pass decides to
	// keep local; after the split those are exactly the packets left in
	// the local ring, bounding it by epoch_packet_thresh.
	localAssigned := uint32(0)
	// Only queues still held by this core (Claimed or Active) may take new
	// flows; a Draining queue is on its way out and a Free one is no
	// longer ours.
	usable := make([]int, 0, len(c.ownedSwQueues))
	assignedByQueue := make(map[int]uint32, len(c.ownedSwQueues))
	for _, qid := range c.ownedSwQueues {
		slot := c.swPool.Slot(qid)
		if slot == nil {
			continue
		}
		if st := slot.State(); st == swqueue.Claimed || st == swqueue.Active {
			usable = append(usable, qid)
			assignedByQueue[qid] = uint32(slot.Ring().Len())
		}
	}

	for _, key := range c.epochFlowOrder {
		state := c.epochFlowCache[key]
		if state == nil || state.Offload.Kind != flow.TargetNone {
			continue
		}
		queued := uint32(state.QueuedPacketCount())

		switch {
		case queued > c.cfg.EpochPacketThresh:
			state.Offload = flow.DumpSuperFlow

		case localAssigned+queued < c.cfg.EpochPacketThresh:
			localAssigned += queued

		default:
			placed := false
			for _, qid := range usable {
				if assignedByQueue[qid]+queued < c.cfg.EpochPacketThresh {
					assignedByQueue[qid] += queued
					state.Offload = flow.SwQueue(qid)
					placed = true
					break
				}
			}
			if !placed {
				if qid, ok := c.swPool.Claim(c.cfg.CoreID); ok {
					c.ownedSwQueues = append(c.ownedSwQueues, qid)
					usable = append(usable, qid)
					assignedByQueue[qid] = queued
					state.Offload = flow.SwQueue(qid)
					placed = true
				}
			}
			if !placed {
				state.Offload = flow.DumpNoRoom
			}
		}
	}
}

// serviceOwnedQueues runs after the split so a freshly claimed queue
// already carries its packets when the activation request goes out:
// request ToWork for any populated Claimed queue, and release slots idle
// past swqueue.IdleDrainThreshold consecutive epochs.
func (c *Core) serviceOwnedQueues() {
	kept := c.ownedSwQueues[:0]
	for _, qid := range c.ownedSwQueues {
		slot := c.swPool.Slot(qid)
		if slot == nil || slot.State() == swqueue.Free {
			// Released and possibly reclaimed by another core.
			continue
		}
		if slot.State() == swqueue.Claimed && slot.Ring().Len() > 0 && c.directory != nil {
			c.directory.ActivateQueue(qid)
		}
		if c.swPool.TickIdle(qid) >= swqueue.IdleDrainThreshold {
			if slot.State() == swqueue.Claimed && c.swPool.Release(qid) {
				continue
			}
			if slot.State() == swqueue.Active && c.directory != nil {
				c.directory.ReleaseQueue(qid)
			}
		}
		kept = append(kept, qid)
	}
	c.ownedSwQueues = kept
}

// splitLocalRingToSwQueues scans the entire local ring once, re-routing
// each queued packet according to its (possibly newly assigned) offload
// target. Unlike the arrival path these packets were
// already counted as ingress when first enqueued, so only their exit from
// the local ring is accounted here. Packets bound for a sw-queue are
// enqueued even when no consumer is attached yet: the ToWork notification
// goes out right after the split.
func (c *Core) splitLocalRingToSwQueues() {
	n := c.localRing.Len()
	for i := 0; i < n; i++ {
		pkt, ok := c.localRing.Dequeue()
		if !ok {
			break
		}
		state := c.flowTable.StateBySlot(pkt.FlowSlot)
		if state == nil || state.Offload.Kind == flow.TargetNone {
			if c.localRing.Enqueue(pkt) {
				continue
			}
			c.dropFromRing(state, pkt, api.DropLocalQueueOverflow)
			continue
		}
		switch state.Offload.Kind {
		case flow.TargetDumpNoRoom:
			c.dropFromRing(state, pkt, api.DropNoRoom)
		case flow.TargetDumpSuperFlow:
			c.dropFromRing(state, pkt, api.DropSuperFlow)
		case flow.TargetSwQueue:
			qid := state.Offload.QueueID
			if c.swPool.EnqueueBurst(qid, []*api.Packet{pkt}, func(p *api.Packet) {
				c.dropFromRing(state, p, api.DropLocalQueueOverflow)
			}) > 0 {
				state.EgressCount++
				if state.Queued > 0 {
					state.Queued--
				}
			}
		}
	}
}

// dropFromRing frees a packet that had already been admitted to the local
// ring, keeping ingress >= egress and the queued gauge consistent.
func (c *Core) dropFromRing(state *flow.State, pkt *api.Packet, class api.DropClass) {
	if state != nil {
		if state.IngressCount > state.EgressCount {
			state.EgressCount++
		}
		if state.Queued > 0 {
			state.Queued--
		}
	}
	c.countAndDrop(pkt, class)
}

// pollMigration implements both legs of the move commit protocol this core
// may take part in this epoch close: honor any pending drain
// request by detaching the named bucket's flows and handing them to their
// new owner, and absorb any incoming handoff from a bucket this core just
// gained ownership of.
func (c *Core) pollMigration() {
	if c.migrateBus == nil {
		return
	}
	for {
		req, ok := c.migrateBus.PollDrainRequest(c.cfg.CoreID)
		if !ok {
			break
		}
		states := c.flowTable.DrainBucket(req.Bucket)
		// Handed-off states belong to the new owner the moment the
		// handoff is enqueued; drop them from this epoch's admission set
		// so nothing here mutates them afterwards.
		for _, state := range states {
			delete(c.epochFlowCache, state.Key)
		}
		c.migrateBus.SendHandoff(req.NewOwner, migrate.Handoff{
			Bucket: req.Bucket,
			States: states,
			From:   c.cfg.CoreID,
		})
	}
	for {
		h, ok := c.migrateBus.PollHandoff(c.cfg.CoreID)
		if !ok {
			break
		}
		for _, state := range h.States {
			c.flowTable.Insert(state.Key, state)
		}
	}
}

// publishBucketFlowCounts writes each owned bucket's distinct-flow
// membership for this epoch to the global BucketStats table.
func (c *Core) publishBucketFlowCounts() {
	seen := make(map[uint16]struct{})
	for _, key := range c.epochFlowOrder {
		state := c.epochFlowCache[key]
		if state == nil {
			continue
		}
		seen[state.RssBucket] = struct{}{}
	}
	for bkt := range seen {
		n := uint64(c.flowTable.BucketFlowCount(bkt))
		c.stats.SetFlowCount(bkt, n)
		c.bucketOwn.Buckets[bkt].UniqueFlowCountEpoch.Store(n)
	}
}
