// File: internal/normalcore/parse.go
// Package normalcore
// Author: momentics <momentics@gmail.com>
//
// Packet parsing for the pull phase: a single DecodingLayerParser with
// reused layer structs decodes Ethernet -> IPv4/IPv6 -> TCP/UDP with
// near-zero allocation. Anything without a TCP/UDP layer is reported as
// non-L4 for the caller to free.

package normalcore

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/momentics/nfvworker/internal/flow"
)

// parser holds one core's reusable decode stack. Not safe for concurrent
// use, which is fine: each NormalCore owns exactly one.
type parser struct {
	dlp  *gopacket.DecodingLayerParser
	eth  layers.Ethernet
	ip4  layers.IPv4
	ip6  layers.IPv6
	tcp  layers.TCP
	udp  layers.UDP
	decoded []gopacket.LayerType
}

func newParser() *parser {
	p := &parser{decoded: make([]gopacket.LayerType, 0, 4)}
	p.dlp = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&p.eth, &p.ip4, &p.ip6, &p.tcp, &p.udp,
	)
	p.dlp.IgnoreUnsupported = true
	return p
}

// parseFlowKey attempts to extract a 5-tuple from raw. ok is false for
// non-L4 (TCP/UDP) traffic, which the caller must free.
func (p *parser) parseFlowKey(raw []byte) (key flow.Key, ok bool) {
	p.decoded = p.decoded[:0]
	if err := p.dlp.DecodeLayers(raw, &p.decoded); err != nil && len(p.decoded) == 0 {
		return flow.Key{}, false
	}

	var srcIP, dstIP [4]byte
	var proto uint8
	haveL3 := false
	haveL4 := false
	var srcPort, dstPort uint16

	for _, lt := range p.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			copy(srcIP[:], p.ip4.SrcIP.To4())
			copy(dstIP[:], p.ip4.DstIP.To4())
			proto = uint8(p.ip4.Protocol)
			haveL3 = true
		case layers.LayerTypeIPv6:
			// IPv6 flows are folded into the same 4-byte key fields via the
			// low 32 bits of the address; the 13-byte tuple has no room for
			// full v6 addressing.
			src6 := p.ip6.SrcIP.To16()
			dst6 := p.ip6.DstIP.To16()
			copy(srcIP[:], src6[12:16])
			copy(dstIP[:], dst6[12:16])
			proto = uint8(p.ip6.NextHeader)
			haveL3 = true
		case layers.LayerTypeTCP:
			srcPort = uint16(p.tcp.SrcPort)
			dstPort = uint16(p.tcp.DstPort)
			haveL4 = true
		case layers.LayerTypeUDP:
			srcPort = uint16(p.udp.SrcPort)
			dstPort = uint16(p.udp.DstPort)
			haveL4 = true
		}
	}

	if !haveL3 || !haveL4 {
		return flow.Key{}, false
	}
	return flow.NewKey(srcIP, dstIP, proto, srcPort, dstPort), true
}
