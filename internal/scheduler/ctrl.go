// File: internal/scheduler/ctrl.go
// Package scheduler
// Author: momentics <momentics@gmail.com>
//
// Ctrl is the long-term epoch controller: bucket repacking, RSS
// indirection updates, reserved-core lifecycle, and the bucket move
// commit protocol. It is a plain value owning references to the shared
// tables; cores see it only through the ReservedCoreDirectory surface.

package scheduler

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/bucket"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/corestate"
	"github.com/momentics/nfvworker/internal/flow"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/swqueue"
)

// Long-epoch tunables.
const (
	HighThresh      = 0.9 // overload trigger: rate above HighThresh*capacity
	MigrateHeadroom = 0.1 // "must migrate" safety margin
	AssignHeadroom  = 0.2 // "initial place" safety margin

	// RssUpdateMinIntervalNs is the NIC-imposed floor between two
	// successive RSS indirection updates.
	RssUpdateMinIntervalNs = 5_000_000
)

// NormalCoreHandle is the subset of normalcore.Core the Scheduler holds.
// Ctrl itself uses only ID(); the profile-curve lookup takes per-core flow
// counts from the BucketStats snapshot, and FlowTable remains
// single-writer/single-reader.
type NormalCoreHandle interface {
	ID() int
	FlowTable() *flow.Table
}

// Ctrl is the Scheduler/Ctrl component.
type Ctrl struct {
	mu sync.Mutex

	coreTable   *corestate.Table
	normalCores map[int]NormalCoreHandle

	reservedCoreIDs []int
	rrCursor        int

	stats       *bucket.Stats
	buckets     *bucket.Table
	swPool      *swqueue.Pool
	bus         *swqueue.Bus
	migrateBus  *migrate.Bus
	nic         api.NicAdapter
	clk         api.Clock
	profile     ProfileCurve
	longEpochNs int64

	// addedOrder tracks, per core, the order buckets were assigned to it,
	// giving overload eviction a deterministic least-recently-added
	// policy.
	addedOrder map[int]*queue.Queue

	metrics *control.MetricsRegistry
	log     *logrus.Logger

	lastRssUpdateNs atomic.Int64

	// lastPps/lastFlows hold the most recent long-epoch per-core view,
	// surfaced through get_stats.
	lastPps   map[int]uint64
	lastFlows map[int]uint64

	// consolidating is the core id being emptied by the current epoch's
	// consolidation pass, or -1. Its Normal->Unused transition happens only
	// after the RSS update for its bucket moves lands, so a failed update
	// never strands buckets on a non-Normal owner.
	consolidating int
}

// New builds a Ctrl. Call RegisterNormalCore/RegisterReservedCore for every
// core before the first RunLongEpoch/RebalanceNow.
func New(coreTable *corestate.Table, stats *bucket.Stats, buckets *bucket.Table,
	swPool *swqueue.Pool, bus *swqueue.Bus, migrateBus *migrate.Bus, nic api.NicAdapter,
	clk api.Clock, profile ProfileCurve, longEpochNs int64,
	metrics *control.MetricsRegistry, log *logrus.Logger) *Ctrl {
	return &Ctrl{
		coreTable:     coreTable,
		normalCores:   make(map[int]NormalCoreHandle),
		stats:         stats,
		buckets:       buckets,
		swPool:        swPool,
		bus:           bus,
		migrateBus:    migrateBus,
		nic:           nic,
		clk:           clk,
		profile:       profile,
		longEpochNs:   longEpochNs,
		addedOrder:    make(map[int]*queue.Queue),
		metrics:       metrics,
		log:           log,
		lastPps:       make(map[int]uint64),
		lastFlows:     make(map[int]uint64),
		consolidating: -1,
	}
}

// SetProfile swaps the NF-profile curve live.
func (s *Ctrl) SetProfile(p ProfileCurve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// InitialPlacement distributes all RSS buckets round-robin across the
// currently registered Normal cores and pushes the first indirection
// table to the NIC. Called once at startup before any core goroutine
// runs; the very first placement has no rate history to pack by.
func (s *Ctrl) InitialPlacement() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	normal := s.coreTable.NormalCores()
	if len(normal) == 0 {
		return api.ErrInvalidArgument
	}
	sort.Ints(normal)
	var table api.RssTable
	for i := 0; i < bucket.NumBuckets; i++ {
		owner := normal[i%len(normal)]
		s.buckets.Buckets[i].ClearPendingMove(owner)
		s.coreTable.Cores[owner].AddBucket(uint16(i))
		s.pushAdded(owner, uint16(i))
		table[i] = uint16(owner)
	}
	if err := s.nic.UpdateRss(table); err != nil {
		return err
	}
	s.lastRssUpdateNs.Store(s.clk.NowNs())
	if s.metrics != nil {
		s.metrics.RssUpdates.Inc()
	}
	return nil
}

// PerCoreView returns the last long epoch's per-core rate and flow count.
func (s *Ctrl) PerCoreView() (pps map[int]float64, flows map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pps = make(map[int]float64, len(s.lastPps))
	flows = make(map[int]int, len(s.lastFlows))
	for id, v := range s.lastPps {
		pps[id] = float64(v)
	}
	for id, v := range s.lastFlows {
		flows[id] = int(v)
	}
	return pps, flows
}

// CheckInvariants validates the global ownership invariants:
// every owned bucket's owner is a live Normal core and appears in that
// core's owned_buckets set, no other core also claims the bucket, and no
// sw-queue reports a Reserved or nonexistent producer. A non-nil return
// is fatal: the caller must dump the returned context and exit with code 4.
func (s *Ctrl) CheckInvariants() *api.InvariantError {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < bucket.NumBuckets; i++ {
		owner := int(s.buckets.Buckets[i].OwnerCore.Load())
		if owner == bucket.InvalidCore {
			continue
		}
		c := s.coreTable.Cores[owner]
		if c == nil || c.Role() != corestate.RoleNormal {
			return api.NewInvariantError("bucket owned by non-Normal core", map[string]any{
				"bucket": i, "owner": owner, "dump": s.dumpLocked(),
			})
		}
		if !c.OwnsBucket(uint16(i)) {
			return api.NewInvariantError("bucket owner does not record ownership", map[string]any{
				"bucket": i, "owner": owner, "dump": s.dumpLocked(),
			})
		}
		for _, other := range s.coreTable.Cores {
			if other != nil && other.ID != owner && other.OwnsBucket(uint16(i)) {
				return api.NewInvariantError("bucket claimed by two cores", map[string]any{
					"bucket": i, "owner": owner, "claimant": other.ID, "dump": s.dumpLocked(),
				})
			}
		}
	}
	for qid := 0; qid < s.swPool.Size(); qid++ {
		slot := s.swPool.Slot(qid)
		prod, bound := slot.ProducerCore()
		if !bound {
			continue
		}
		// A consolidated core may legitimately keep draining its claimed
		// queues while already Unused; only a Reserved or nonexistent
		// producer is impossible.
		if c := s.coreTable.Cores[prod]; c == nil || c.Role() == corestate.RoleReserved {
			return api.NewInvariantError("sw-queue producer is not a normal-capable core", map[string]any{
				"queue": qid, "producer": prod, "state": slot.State().String(), "dump": s.dumpLocked(),
			})
		}
	}
	return nil
}

// dumpLocked renders the CoreState/RssBucket tables for the diagnostic
// dump required on invariant violations.
func (s *Ctrl) dumpLocked() map[string]any {
	cores := make(map[int]map[string]any)
	for _, c := range s.coreTable.Cores {
		if c.Role() == corestate.RoleUnused && c.BucketCount() == 0 {
			continue
		}
		cores[c.ID] = map[string]any{
			"role":     c.Role().String(),
			"liveness": c.LivenessEpochs.Load(),
			"buckets":  c.BucketCount(),
		}
	}
	bucketOwners := make(map[int]int)
	for i := 0; i < bucket.NumBuckets; i++ {
		if owner := int(s.buckets.Buckets[i].OwnerCore.Load()); owner != bucket.InvalidCore {
			bucketOwners[i] = owner
		}
	}
	return map[string]any{"cores": cores, "bucket_owners": bucketOwners}
}

// RegisterNormalCore makes h eligible for placement/migration decisions.
func (s *Ctrl) RegisterNormalCore(h NormalCoreHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalCores[h.ID()] = h
	if s.addedOrder[h.ID()] == nil {
		s.addedOrder[h.ID()] = queue.New()
	}
}

// RegisterReservedCore adds id to the round-robin pool ActivateQueue draws
// from.
func (s *Ctrl) RegisterReservedCore(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservedCoreIDs = append(s.reservedCoreIDs, id)
}

// ActivateQueue implements api.ReservedCoreDirectory: pick the next
// reserved core round-robin and send it a ToWork(queueID).
func (s *Ctrl) ActivateQueue(queueID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reservedCoreIDs) == 0 {
		return false
	}
	id := s.reservedCoreIDs[s.rrCursor%len(s.reservedCoreIDs)]
	s.rrCursor++
	return s.bus.ToWork(id, queueID)
}

// ReleaseQueue implements api.ReservedCoreDirectory: tell the sw-queue's
// bound consumer to rest.
func (s *Ctrl) ReleaseQueue(queueID int) bool {
	slot := s.swPool.Slot(queueID)
	if slot == nil {
		return false
	}
	reservedCore, bound := slot.ConsumerCore()
	if !bound {
		return false
	}
	return s.bus.ToRest(reservedCore, queueID)
}

// perCoreRates sums each bucket's packet rate onto its owning Normal core,
// returning per-core pps and per-core flow count.
func (s *Ctrl) perCoreRates(snap [bucket.NumBuckets]bucket.Counters) (pps map[int]uint64, flows map[int]uint64) {
	pps = make(map[int]uint64)
	flows = make(map[int]uint64)
	epochSeconds := float64(s.longEpochNs) / 1e9
	if epochSeconds <= 0 {
		epochSeconds = 1
	}
	for i, c := range snap {
		owner := int(s.buckets.Buckets[i].OwnerCore.Load())
		if owner == bucket.InvalidCore {
			continue
		}
		pps[owner] += uint64(float64(c.PacketCount) / epochSeconds)
		flows[owner] += c.FlowCount
	}
	return pps, flows
}

// capacityFor returns the profile-curve capacity for a core given its
// current flow count.
func (s *Ctrl) capacityFor(flowCount uint64) uint64 { return s.profile.MaxPps(flowCount) }

type pendingMove struct {
	bucket    uint16
	oldOwner  int
	newOwner  int
	bucketPps uint64
}

// RunLongEpoch runs the full periodic long-term epoch: overload detection,
// placement, consolidation, and commit.
func (s *Ctrl) RunLongEpoch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats.Snapshot(true)
	for _, b := range s.buckets.Buckets {
		b.PacketCountEpoch.Store(0)
	}
	s.lastPps, s.lastFlows = s.perCoreRates(snap)
	moves := s.rebalanceLocked(snap, s.coreTable.NormalCores(), true)
	s.commitMovesLocked(moves)
	if s.metrics != nil {
		s.metrics.ActiveCores.Set(float64(s.coreTable.CountByRole(corestate.RoleNormal)))
		for id, v := range s.lastPps {
			s.metrics.PerCorePps.WithLabelValues(coreLabel(id)).Set(float64(v))
		}
		for id, v := range s.lastFlows {
			s.metrics.PerCoreFlowCount.WithLabelValues(coreLabel(id)).Set(float64(v))
		}
		for i, c := range snap {
			if c.PacketCount == 0 && c.FlowCount == 0 {
				continue
			}
			s.metrics.BucketPackets.WithLabelValues(coreLabel(i)).Add(float64(c.PacketCount))
			s.metrics.BucketFlows.WithLabelValues(coreLabel(i)).Set(float64(c.FlowCount))
		}
	}
}

func coreLabel(id int) string { return strconv.Itoa(id) }

// RebalanceNow implements api.ReservedCoreDirectory: the on-demand
// rebalance of a single overloaded core, gated by the 5 ms RSS-update
// guard. A request arriving inside the guard window is simply not acted
// on; the caller's trigger condition persists and re-issues it.
func (s *Ctrl) RebalanceNow(coreID int) {
	if s.clk.NowNs()-s.lastRssUpdateNs.Load() < RssUpdateMinIntervalNs {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats.Snapshot(false)
	moves := s.rebalanceLocked(snap, []int{coreID}, false)
	s.commitMovesLocked(moves)
}

// rebalanceLocked implements steps 1-4, called with s.mu held.
// consolidate selects whether step 4 (consolidation) runs, which only
// applies to the periodic full-fleet pass, not the single-core on-demand
// variant.
func (s *Ctrl) rebalanceLocked(snap [bucket.NumBuckets]bucket.Counters, coreIDs []int, consolidate bool) []pendingMove {
	pps, flows := s.perCoreRates(snap)
	var moves []pendingMove

	for _, coreID := range coreIDs {
		capacity := s.capacityFor(flows[coreID])
		if capacity == 0 || float64(pps[coreID]) <= HighThresh*float64(capacity) {
			continue
		}
		target := uint64((1 - MigrateHeadroom) * float64(capacity))
		for pps[coreID] >= target {
			bkt, ok := s.popLeastRecentlyAdded(coreID)
			if !ok {
				break
			}
			bucketPps := uint64(float64(snap[bkt].PacketCount) / (float64(s.longEpochNs) / 1e9))
			if bucketPps > pps[coreID] {
				pps[coreID] = 0
			} else {
				pps[coreID] -= bucketPps
			}
			moves = append(moves, pendingMove{bucket: bkt, oldOwner: coreID, newOwner: unassigned, bucketPps: bucketPps})
		}
	}

	s.placeFirstFit(moves, pps, flows)

	if consolidate {
		if mv := s.consolidate(pps, flows); mv != nil {
			moves = append(moves, mv...)
		}
	}

	out := moves[:0]
	for _, mv := range moves {
		if mv.newOwner != mv.oldOwner {
			out = append(out, mv)
		}
	}
	return out
}

// unassigned marks a pendingMove with no destination core chosen yet.
// Core id 0 is a valid core, so a sentinel distinct from every real id is
// required.
const unassigned = -1

// placeFirstFit fills in newOwner for every move with no destination
// yet: first-fit onto existing Normal cores with spare capacity, else
// activate a currently-Unused core.
func (s *Ctrl) placeFirstFit(moves []pendingMove, pps, flows map[int]uint64) {
	normal := s.coreTable.NormalCores()
	sort.Ints(normal)
	for i := range moves {
		if moves[i].newOwner != unassigned {
			continue
		}
		bucketPps := moves[i].bucketPps
		placed := false
		for _, candidate := range normal {
			if candidate == moves[i].oldOwner {
				continue
			}
			capacity := s.capacityFor(flows[candidate])
			if float64(pps[candidate]+bucketPps) < (1-AssignHeadroom)*float64(capacity) {
				moves[i].newOwner = candidate
				pps[candidate] += bucketPps
				s.pushAdded(candidate, moves[i].bucket)
				placed = true
				break
			}
		}
		if !placed {
			if id, ok := s.activateUnusedCore(); ok {
				moves[i].newOwner = id
				pps[id] += bucketPps
				s.pushAdded(id, moves[i].bucket)
				normal = append(normal, id)
				sort.Ints(normal)
			} else {
				// No room anywhere: leave ownership unchanged rather than
				// orphan the bucket.
				moves[i].newOwner = moves[i].oldOwner
				s.pushAdded(moves[i].oldOwner, moves[i].bucket)
			}
		}
	}
}

// consolidate finds the least-loaded Normal core that has been Normal
// for >= LivenessConsolidationThreshold long epochs, tentatively folds
// its buckets into the rest via first-fit, and commits only if that
// succeeds without activating a new core.
func (s *Ctrl) consolidate(pps, flows map[int]uint64) []pendingMove {
	normal := s.coreTable.NormalCores()
	var candidate *corestate.Core
	var candidateRate uint64 = ^uint64(0)
	for _, id := range normal {
		c := s.coreTable.Cores[id]
		if c.LivenessEpochs.Load() < corestate.LivenessConsolidationThreshold {
			continue
		}
		if pps[id] < candidateRate {
			candidate = c
			candidateRate = pps[id]
		}
	}
	if candidate == nil {
		return nil
	}

	buckets := candidate.OwnedBuckets()
	if len(buckets) == 0 {
		candidate.CASRole(corestate.RoleNormal, corestate.RoleUnused)
		return nil
	}

	trialPps := make(map[int]uint64, len(pps))
	for k, v := range pps {
		trialPps[k] = v
	}
	others := make([]int, 0, len(normal)-1)
	for _, id := range normal {
		if id != candidate.ID {
			others = append(others, id)
		}
	}
	sort.Ints(others)

	moves := make([]pendingMove, 0, len(buckets))
	for _, bkt := range buckets {
		bucketPps := pps[candidate.ID] / uint64(len(buckets)) // even split approximation of this bucket's share
		placed := false
		for _, other := range others {
			capacity := s.capacityFor(flows[other])
			if float64(trialPps[other]+bucketPps) < (1-AssignHeadroom)*float64(capacity) {
				trialPps[other] += bucketPps
				moves = append(moves, pendingMove{bucket: bkt, oldOwner: candidate.ID, newOwner: other})
				placed = true
				break
			}
		}
		if !placed {
			// Consolidation that would spawn a new core defeats its
			// purpose; roll back.
			return nil
		}
	}

	for k, v := range trialPps {
		pps[k] = v
	}
	for _, mv := range moves {
		s.pushAdded(mv.newOwner, mv.bucket)
	}
	s.consolidating = candidate.ID
	return moves
}

// activateUnusedCore transitions the lowest-id registered-but-Unused core
// to Normal. Only cores with a registered handle (a running receive loop)
// are eligible: a bare CoreState slot with no goroutine behind it can
// never drain the buckets it would be handed.
func (s *Ctrl) activateUnusedCore() (int, bool) {
	ids := make([]int, 0, len(s.normalCores))
	for id := range s.normalCores {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := s.coreTable.Cores[id]
		if c != nil && c.CASRole(corestate.RoleUnused, corestate.RoleNormal) {
			c.LivenessEpochs.Store(0)
			return id, true
		}
	}
	return 0, false
}

// popLeastRecentlyAdded pops the oldest bucket still owned by coreID, for
// deterministic overload eviction. Entries for buckets that have since
// moved away (consolidation, on-demand rebalance) are discarded as they
// surface.
func (s *Ctrl) popLeastRecentlyAdded(coreID int) (uint16, bool) {
	q := s.addedOrder[coreID]
	c := s.coreTable.Cores[coreID]
	for q != nil && q.Length() > 0 {
		bkt := q.Remove().(uint16)
		if c != nil && c.OwnsBucket(bkt) {
			return bkt, true
		}
	}
	return 0, false
}

func (s *Ctrl) pushAdded(coreID int, b uint16) {
	q := s.addedOrder[coreID]
	if q == nil {
		q = queue.New()
		s.addedOrder[coreID] = q
	}
	q.Add(b)
}

// commitMovesLocked runs the commit protocol for every move in moves:
// freeze, RSS update, ownership transfer, and a drain request to the old
// owner (the actual FlowState handoff happens asynchronously via
// internal/migrate once the old owner's current epoch closes).
func (s *Ctrl) commitMovesLocked(moves []pendingMove) {
	if len(moves) == 0 {
		return
	}
	for _, mv := range moves {
		s.buckets.Buckets[mv.bucket].MarkPendingMove(mv.newOwner)
	}

	var table api.RssTable
	for i := range table {
		owner := s.buckets.Buckets[i].OwnerCore.Load()
		if owner == bucket.InvalidCore {
			table[i] = api.InvalidCoreID
			continue
		}
		table[i] = uint16(owner)
	}
	for _, mv := range moves {
		table[mv.bucket] = uint16(mv.newOwner)
	}

	if err := s.nic.UpdateRss(table); err != nil {
		s.log.WithField("error", err).Warn("rss indirection update failed, moves rolled back")
		for _, mv := range moves {
			s.buckets.Buckets[mv.bucket].ClearPendingMove(int(s.buckets.Buckets[mv.bucket].OwnerCore.Load()))
		}
		s.consolidating = -1
		return
	}
	s.lastRssUpdateNs.Store(s.clk.NowNs())
	if s.metrics != nil {
		s.metrics.RssUpdates.Inc()
	}

	for _, mv := range moves {
		if old := s.coreTable.Cores[mv.oldOwner]; old != nil {
			old.RemoveBucket(mv.bucket)
		}
		if neu := s.coreTable.Cores[mv.newOwner]; neu != nil {
			neu.AddBucket(mv.bucket)
		}
		s.buckets.Buckets[mv.bucket].ClearPendingMove(mv.newOwner)
		s.migrateBus.RequestDrain(mv.oldOwner, migrate.DrainRequest{Bucket: mv.bucket, NewOwner: mv.newOwner})
		s.log.WithFields(logrus.Fields{
			"bucket": mv.bucket, "from": mv.oldOwner, "to": mv.newOwner,
		}).Info("bucket ownership moved")
	}

	if s.consolidating >= 0 {
		if c := s.coreTable.Cores[s.consolidating]; c != nil && c.BucketCount() == 0 {
			c.CASRole(corestate.RoleNormal, corestate.RoleUnused)
			s.log.WithField("core", s.consolidating).Info("core consolidated to unused")
		}
		s.consolidating = -1
	}
}

// TickLiveness increments the liveness counter of every Normal core that
// owns at least one bucket by one long epoch, called once per RunLongEpoch
// invocation by the runtime driver.
func (s *Ctrl) TickLiveness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.coreTable.NormalCores() {
		if c := s.coreTable.Cores[id]; c.BucketCount() > 0 {
			c.LivenessEpochs.Add(1)
		}
	}
}
