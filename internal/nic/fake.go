// File: internal/nic/fake.go
// Package nic
// Author: momentics <momentics@gmail.com>
//
// FakeAdapter is the bundled, self-contained NicAdapter: a simulated
// loopback NIC over in-memory per-qid rings so the scheduler core is
// runnable and testable end-to-end without a real driver. Each qid maps
// 1:1 to a NormalCore id. Readiness notification is backed by the
// platform primitive in readiness_linux.go/readiness_stub.go (eventfd +
// epoll on Linux).

package nic

import (
	"sync"
	"time"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/concurrency"
)

// queueRings holds the per-qid RX ring (test/simulation harnesses inject
// packets here) and TX ring (Send appends here for inspection).
type queueRings struct {
	rx *concurrency.RingBuffer[*api.Packet]
	tx *concurrency.RingBuffer[*api.Packet]
}

// FakeAdapter implements api.NicAdapter over in-memory per-qid rings.
type FakeAdapter struct {
	mu        sync.Mutex
	queues    map[int]*queueRings
	readiness readiness

	lastRssUpdate time.Time
	rssTable      api.RssTable
}

// NewFakeAdapter allocates an adapter ready to serve nQueues RX/TX
// queues, each with the given ring capacity (power of two).
func NewFakeAdapter(nQueues int, ringCapacity uint64) *FakeAdapter {
	a := &FakeAdapter{
		queues:    make(map[int]*queueRings, nQueues),
		readiness: newReadiness(),
	}
	for i := 0; i < nQueues; i++ {
		a.queues[i] = &queueRings{
			rx: concurrency.NewRingBuffer[*api.Packet](ringCapacity),
			tx: concurrency.NewRingBuffer[*api.Packet](ringCapacity),
		}
	}
	for i := range a.rssTable {
		a.rssTable[i] = api.InvalidCoreID
	}
	return a
}

var _ api.NicAdapter = (*FakeAdapter)(nil)

// Inject pushes simulated ingress packets onto qid's RX ring, as a test
// harness or pcap-replay driver would. Overflowing packets are dropped
// silently (NIC-side drop, outside the core's drop taxonomy).
func (a *FakeAdapter) Inject(qid int, pkts []*api.Packet) (queued int) {
	q := a.queueFor(qid)
	if q == nil {
		return 0
	}
	for _, p := range pkts {
		if q.rx.Enqueue(p) {
			queued++
		}
	}
	if queued > 0 {
		a.readiness.signal(qid)
	}
	return queued
}

// Sent drains up to len(out) packets previously accepted by Send, for test
// assertions on egress traffic.
func (a *FakeAdapter) Sent(qid int, out []*api.Packet) int {
	q := a.queueFor(qid)
	if q == nil {
		return 0
	}
	return q.tx.DrainInto(out)
}

func (a *FakeAdapter) queueFor(qid int) *queueRings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queues[qid]
}

// Recv implements api.NicAdapter: a non-blocking burst receive.
func (a *FakeAdapter) Recv(qid int, out []*api.Packet) (int, error) {
	q := a.queueFor(qid)
	if q == nil {
		return 0, api.ErrInvalidArgument
	}
	return q.rx.DrainInto(out), nil
}

// Send implements api.NicAdapter: a non-blocking burst send.
func (a *FakeAdapter) Send(qid int, in []*api.Packet) (int, error) {
	q := a.queueFor(qid)
	if q == nil {
		return 0, api.ErrInvalidArgument
	}
	accepted := 0
	for _, p := range in {
		if q.tx.Enqueue(p) {
			accepted++
		} else {
			break
		}
	}
	return accepted, nil
}

// UpdateRss implements api.NicAdapter. The 5ms rate-limit guard
// is the Scheduler's responsibility to enforce before
// calling this; the adapter simply records the applied table.
func (a *FakeAdapter) UpdateRss(table api.RssTable) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rssTable = table
	a.lastRssUpdate = time.Now()
	return nil
}

// CurrentRssTable returns the last applied RSS indirection table, for
// tests and debug probes.
func (a *FakeAdapter) CurrentRssTable() api.RssTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rssTable
}

// NowNs implements api.NicAdapter's optional NIC clock; the fake adapter
// has no separate clock domain so it reports unsupported.
func (a *FakeAdapter) NowNs() (int64, bool) { return 0, false }

// WaitReadable blocks up to timeout for qid to have pending RX packets,
// returning false on timeout. Useful to avoid busy-spinning when idle;
// the hot admission/processing loop itself never calls it.
func (a *FakeAdapter) WaitReadable(qid int, timeout time.Duration) bool {
	return a.readiness.wait(qid, timeout)
}

// Close releases readiness resources (epoll fd on Linux).
func (a *FakeAdapter) Close() error { return a.readiness.close() }
