// File: internal/api/nic.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// NicAdapter is the external NIC driver collaborator. The core treats it
// purely as an interface; a concrete implementation (internal/nic) wraps
// either a real driver or, for this self-contained repository, a
// simulated epoll-backed loopback NIC.

package api

// RssTableSize is the fixed RSS indirection table size.
const RssTableSize = 512

// InvalidCoreID is the sentinel written into an RSS indirection slot that
// has no owning core.
const InvalidCoreID uint16 = 0xFFFF

// RssTable is the bit-exact shape of the RSS indirection table: 512
// entries of u16 core-id.
type RssTable [RssTableSize]uint16

// NicAdapter wraps NIC RX/TX and RSS indirection table updates.
type NicAdapter interface {
	// Recv performs a non-blocking burst receive on qid into out, returning
	// the number of packets filled.
	Recv(qid int, out []*Packet) (n int, err error)
	// Send performs a non-blocking burst send on qid, returning the number
	// of packets the NIC accepted. Packets beyond the accepted count are
	// the caller's responsibility (drop class NicTxDrop).
	Send(qid int, in []*Packet) (accepted int, err error)
	// UpdateRss pushes a new RSS indirection table. May block up to
	// several ms; the Scheduler must not call this again within 5 ms.
	UpdateRss(table RssTable) error
	// NowNs optionally exposes the NIC's own clock for piecewise-linear
	// NIC<->CPU clock fitting; not on the data path. Returns false if
	// unsupported.
	NowNs() (int64, bool)
}
