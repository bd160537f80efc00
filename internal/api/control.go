// File: internal/api/control.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, statistics, and debug contract exposed to an
// external RPC control channel.

package api

// Stats is the aggregated runtime snapshot served to the control plane.
type Stats struct {
	PerCoreRate      map[int]float64   `json:"per_core_rate"`
	PerCoreFlowCount map[int]int       `json:"per_core_flow_count"`
	DropsByClass     map[string]uint64 `json:"drops_by_class"`
	EpochID          uint64            `json:"epoch_id"`
	ActiveCores      []int             `json:"active_cores"`
}

// Control exposes configuration, live metrics, and debug API to the
// control plane.
type Control interface {
	// GetConfig returns a snapshot of all configuration settings.
	GetConfig() map[string]any
	// SetConfig atomically updates or merges configuration settings.
	SetConfig(cfg map[string]any) error
	// Stats returns the current aggregated runtime snapshot.
	Stats() Stats
	// OnReload registers a callback invoked on configuration changes.
	OnReload(fn func())
	// RegisterDebugProbe registers a named debug probe invoked on dumps.
	RegisterDebugProbe(name string, fn func() any)
}
