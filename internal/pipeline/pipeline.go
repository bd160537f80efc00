// File: internal/pipeline/pipeline.go
// Package pipeline
// Author: momentics <momentics@gmail.com>
//
// Batch handoff to the downstream NF module, an external collaborator
// that merely consumes batches. Dispatcher wraps a caller-supplied
// api.NFHandler so every core shares one handoff path regardless of
// which NF is plugged in.

package pipeline

import (
	"strconv"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/control"
)

// Dispatcher forwards batches to an api.NFHandler and records how many
// batches were handed off, keyed by the calling core id.
type Dispatcher struct {
	nf      api.NFHandler
	metrics *control.MetricsRegistry
}

// NewDispatcher wraps nf. metrics may be nil in tests.
func NewDispatcher(nf api.NFHandler, metrics *control.MetricsRegistry) *Dispatcher {
	return &Dispatcher{nf: nf, metrics: metrics}
}

// ProcessBatch hands batch to the wrapped NF. Safe to call from any
// core's single-threaded loop; never blocks beyond what nf itself does.
func (d *Dispatcher) ProcessBatch(ctx api.PipelineContext, batch []*api.Packet) {
	if len(batch) == 0 {
		return
	}
	d.nf.ProcessBatch(ctx, batch)
	if d.metrics != nil {
		d.metrics.NfBatches.WithLabelValues(strconv.Itoa(ctx.CoreID)).Inc()
	}
}

// NoopNF is a minimal downstream NF that frees every packet in the
// batch, the development default in place of a concrete NAT/LB/ACL/IDS
// module.
type NoopNF struct{}

// ProcessBatch implements api.NFHandler by releasing every packet.
func (NoopNF) ProcessBatch(_ api.PipelineContext, batch []*api.Packet) {
	for _, p := range batch {
		p.Free()
	}
}

var _ api.NFHandler = NoopNF{}
