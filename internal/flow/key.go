// File: internal/flow/key.go
// Package flow
// Author: momentics <momentics@gmail.com>
//
// FlowKey is the 5-tuple (src_ip, dst_ip, proto, src_port, dst_port):
// 13 significant bytes packed to 16 for hashing, bytewise equality over
// the tuple, CRC32C hash.

package flow

import (
	"fmt"
	"hash/crc32"
	"net"
)

// castagnoliTable selects the CRC32C polynomial, which Go accelerates
// with SSE4.2 where available.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Key is the 5-tuple flow identifier, laid out as a 16-byte packed
// record (13 significant bytes, 3 bytes padding) so hashing and bytewise
// equality are both well-defined over a fixed-size value.
type Key struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	SrcPort uint16
	DstPort uint16
	Proto   uint8
	_       [3]byte // pad to 16 bytes
}

// NewKey builds a Key from its tuple fields.
func NewKey(srcIP, dstIP [4]byte, proto uint8, srcPort, dstPort uint16) Key {
	return Key{SrcIP: srcIP, DstIP: dstIP, SrcPort: srcPort, DstPort: dstPort, Proto: proto}
}

// packed returns the 16-byte wire representation hashed by Hash, bytewise
// identical in layout to the struct fields (no unsafe pointer casts).
func (k Key) packed() [16]byte {
	var b [16]byte
	copy(b[0:4], k.SrcIP[:])
	copy(b[4:8], k.DstIP[:])
	b[8] = byte(k.SrcPort >> 8)
	b[9] = byte(k.SrcPort)
	b[10] = byte(k.DstPort >> 8)
	b[11] = byte(k.DstPort)
	b[12] = k.Proto
	return b
}

// Hash computes the CRC32C hash over the packed tuple.
func (k Key) Hash() uint32 {
	b := k.packed()
	return crc32.Checksum(b[:13], castagnoliTable)
}

// RssBucket maps the flow's hash into one of the 512 RSS buckets.
func (k Key) RssBucket(numBuckets int) uint16 {
	return uint16(k.Hash() % uint32(numBuckets))
}

// Equal reports bytewise tuple equality.
func (k Key) Equal(other Key) bool {
	return k == other
}

func (k Key) String() string {
	proto := "proto"
	switch k.Proto {
	case 6:
		proto = "tcp"
	case 17:
		proto = "udp"
	}
	return fmt.Sprintf("%s:%d->%s:%d/%s",
		net.IP(k.SrcIP[:]), k.SrcPort, net.IP(k.DstIP[:]), k.DstPort, proto)
}
