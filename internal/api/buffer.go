// File: internal/api/buffer.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Buffer is a zero-copy memory slice with NUMA locality and a pool
// back-reference. Packet is the per-packet handle that flows through
// rings: the raw bytes plus a small fixed metadata area (an index into
// the owning core's FlowTable, never a raw cross-core pointer).

package api

// Releaser returns a Buffer to the pool that produced it.
type Releaser interface {
	Put(Buffer)
}

// Buffer represents a zero-copy memory slice.
type Buffer struct {
	Data []byte
	NUMA int
	Pool Releaser
}

// Bytes returns the full byte slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Release returns the buffer to its pool, if any.
func (b Buffer) Release() {
	if b.Pool != nil {
		b.Pool.Put(b)
	}
}

// NoFlowSlot marks a Packet whose FlowKey has not yet been resolved to a
// FlowTable slot (e.g. non-L4 traffic, to be freed immediately).
const NoFlowSlot = -1

// Packet is the per-packet handle passed through local rings, sw-queues,
// and the downstream NF callback. FlowSlot is an arena index into the
// owning NormalCore's FlowTable, set once during the pull phase.
type Packet struct {
	Buf        Buffer
	FlowSlot   int32
	RssBucket  uint16
	RecvTSNano int64
}

// Free releases the packet's buffer back to its pool.
func (p *Packet) Free() {
	p.Buf.Release()
}
