// File: internal/pool/packetpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// PacketPool is the NUMA-aware packet buffer pool behind Alloc/Free: a
// sync.Pool keyed by NUMA node holding pre-sized byte slices, wrapped
// into api.Buffer/api.Packet handles. NUMA preference is recorded but
// allocation always goes through the Go runtime, so no cgo/libnuma
// dependency.

package pool

import (
	"sync"

	"github.com/momentics/nfvworker/internal/api"
)

// PacketPool hands out api.Packet values whose Buf.Data has the requested
// snap length, releasing them back to a per-NUMA-node free list on Free.
type PacketPool struct {
	snaplen int
	mu      sync.Mutex
	byNode  map[int]*sync.Pool
}

// NewPacketPool creates a pool producing buffers of the given fixed
// snaplen (the maximum frame size the NIC adapter will ever fill).
func NewPacketPool(snaplen int) *PacketPool {
	if snaplen <= 0 {
		snaplen = 2048
	}
	return &PacketPool{
		snaplen: snaplen,
		byNode:  make(map[int]*sync.Pool),
	}
}

func (p *PacketPool) poolFor(node int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.byNode[node]
	if !ok {
		snaplen := p.snaplen
		sp = &sync.Pool{New: func() any {
			b := make([]byte, snaplen)
			return &b
		}}
		p.byNode[node] = sp
	}
	return sp
}

// Alloc returns a fresh Packet with Buf sized to snaplen, NUMA-tagged, and
// Pool set so Packet.Free/Buffer.Release return it here.
func (p *PacketPool) Alloc(node int) *api.Packet {
	sp := p.poolFor(node)
	bufp := sp.Get().(*[]byte)
	return &api.Packet{
		Buf: api.Buffer{
			Data: (*bufp)[:p.snaplen],
			NUMA: node,
			Pool: p,
		},
		FlowSlot: api.NoFlowSlot,
	}
}

// Put implements api.Releaser, returning a Buffer's backing slice to its
// NUMA node's free list.
func (p *PacketPool) Put(b api.Buffer) {
	sp := p.poolFor(b.NUMA)
	full := b.Data[:cap(b.Data)]
	sp.Put(&full)
}
