// File: internal/api/pipeline.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Downstream NF handoff contract).

package api

// PipelineContext carries the per-call metadata the downstream NF needs:
// the current monotonic timestamp and the calling core id.
type PipelineContext struct {
	NowNs  int64
	CoreID int
}

// NFHandler is the external downstream network-function callback. A batch
// is a contiguous slice of up to MaxBatch packet handles; the callback may
// mutate, drop (via Packet.Free), or forward packets; it never blocks.
type NFHandler interface {
	ProcessBatch(ctx PipelineContext, batch []*Packet)
}

// MaxBatch is the maximum packets handed to Recv/Send/ProcessBatch in one
// call.
const MaxBatch = 32
