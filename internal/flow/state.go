// File: internal/flow/state.go
// Package flow
// Author: momentics <momentics@gmail.com>
//
// FlowState and OffloadTarget: per-flow ingress/egress/short-epoch
// counters plus the flow's current packet destination. The destination is
// a small value type carrying a queue id, never a pointer shared across
// cores.

package flow

// TargetKind enumerates the possible destinations for a flow's packets for
// the remainder of an epoch.
type TargetKind int

const (
	// TargetNone keeps packets local to the owning NormalCore's ring.
	TargetNone TargetKind = iota
	// TargetDumpNoRoom drops: no sw-queue/reserved core was available.
	TargetDumpNoRoom
	// TargetDumpSuperFlow drops: a single flow exceeds epoch_packet_thresh,
	// so no single core (local or reserved) can absorb it.
	TargetDumpSuperFlow
	// TargetSwQueue routes to a specific sw-queue slot (see QueueID).
	TargetSwQueue
)

func (k TargetKind) String() string {
	switch k {
	case TargetNone:
		return "None"
	case TargetDumpNoRoom:
		return "DumpNoRoom"
	case TargetDumpSuperFlow:
		return "DumpSuperFlow"
	case TargetSwQueue:
		return "SwQueue"
	default:
		return "Unknown"
	}
}

// OffloadTarget is the value-typed destination of a flow's packets
//}").
type OffloadTarget struct {
	Kind    TargetKind
	QueueID int // valid only when Kind == TargetSwQueue
}

// None is the zero-value offload target: keep packets local.
var None = OffloadTarget{Kind: TargetNone}

// SwQueue builds an offload target routing to sw-queue slot id.
func SwQueue(id int) OffloadTarget { return OffloadTarget{Kind: TargetSwQueue, QueueID: id} }

// DumpNoRoom is the offload target for the "no idle reserved core / no
// room" drop class.
var DumpNoRoom = OffloadTarget{Kind: TargetDumpNoRoom}

// DumpSuperFlow is the offload target for the "single flow exceeds
// capacity" drop class.
var DumpSuperFlow = OffloadTarget{Kind: TargetDumpSuperFlow}

// State is a per-flow record, owned exclusively by the NormalCore that
// currently owns the flow's RSS bucket.
type State struct {
	Key       Key
	RssBucket uint16

	// Slot is this flow's arena index into the owning Table, mirrored onto
	// every Packet as FlowSlot so per-packet state lookup needs no second
	// hash and no raw cross-core pointer.
	Slot int32

	IngressCount    uint64 // monotonic; ingress >= egress always
	EgressCount     uint64
	ShortEpochCount uint32 // reset to 0 at each short-epoch close
	Queued          uint32 // packets currently in the local ring for this flow

	Offload OffloadTarget
}

// NewState creates a freshly observed flow's state, as done on first
// packet of a new 5-tuple.
func NewState(key Key, rssBucket uint16) *State {
	return &State{Key: key, RssBucket: rssBucket}
}

// QueuedPacketCount reports ingress-egress, the "queued_packet_count" used
// by the admission algorithm.
func (s *State) QueuedPacketCount() uint64 {
	if s.IngressCount <= s.EgressCount {
		return 0
	}
	return s.IngressCount - s.EgressCount
}

// ResetEpoch clears the short-term epoch counter at epoch close.
func (s *State) ResetEpoch() {
	s.ShortEpochCount = 0
}
