// File: internal/runtime/control.go
// Package runtime
// Author: momentics <momentics@gmail.com>
//
// The Runtime's api.Control implementation: the stats, config, and
// debug surface an external RPC channel would call into.

package runtime

import (
	"sort"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/corestate"
)

var _ api.Control = (*Runtime)(nil)

// GetConfig implements api.Control.
func (r *Runtime) GetConfig() map[string]any { return r.cfgStore.GetSnapshot() }

// SetConfig implements api.Control.
func (r *Runtime) SetConfig(cfg map[string]any) error {
	r.cfgStore.SetConfig(cfg)
	return nil
}

// OnReload implements api.Control.
func (r *Runtime) OnReload(fn func()) { r.cfgStore.OnReload(fn) }

// RegisterDebugProbe implements api.Control.
func (r *Runtime) RegisterDebugProbe(name string, fn func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = fn
}

// Probe invokes a registered debug probe by name.
func (r *Runtime) Probe(name string) (any, bool) {
	r.mu.Lock()
	fn, ok := r.probes[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Stats implements api.Control.
func (r *Runtime) Stats() api.Stats {
	rate, flows := r.ctrl.PerCoreView()
	var active []int
	for _, c := range r.coreTable.Cores {
		if c.Role() == corestate.RoleNormal {
			active = append(active, c.ID)
		}
	}
	sort.Ints(active)
	return api.Stats{
		PerCoreRate:      rate,
		PerCoreFlowCount: flows,
		DropsByClass:     r.metrics.DropTotals(),
		EpochID:          r.longEpochID.Load(),
		ActiveCores:      active,
	}
}

// registerDefaultProbes exposes the standing diagnostic views: sw-queue
// slot states, per-core flow table sizes, and bucket ownership.
func (r *Runtime) registerDefaultProbes() {
	r.probes["swqueues"] = func() any {
		out := make([]map[string]any, 0, r.swPool.Size())
		for id := 0; id < r.swPool.Size(); id++ {
			slot := r.swPool.Slot(id)
			prod, _ := slot.ProducerCore()
			cons, _ := slot.ConsumerCore()
			out = append(out, map[string]any{
				"id": id, "state": slot.State().String(),
				"producer": prod, "consumer": cons,
				"assigned": slot.AssignedPackets(), "processed": slot.ProcessedPackets(),
				"idle_epochs": slot.IdleEpochs(),
			})
		}
		return out
	}
	r.probes["flow_tables"] = func() any {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make(map[int]int, len(r.normals))
		for id, core := range r.normals {
			out[id] = core.FlowTable().Len()
		}
		return out
	}
	r.probes["bucket_owners"] = func() any {
		out := make(map[int][]uint16)
		for _, c := range r.coreTable.Cores {
			if bs := c.OwnedBuckets(); len(bs) > 0 {
				sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
				out[c.ID] = bs
			}
		}
		return out
	}
}
