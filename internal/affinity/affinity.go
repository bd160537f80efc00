// File: internal/affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in separate files (affinity_linux.go, affinity_windows.go, ...)
// guarded by build tags. When the runtime is built with pinning enabled,
// every NormalCore, ReservedCore, and the Scheduler's own goroutine pin
// their OS thread here at startup.

package affinity

import "github.com/momentics/nfvworker/internal/api"

// Pinner implements api.Affinity by delegating to the platform-specific
// setAffinityPlatform/getAffinityPlatform hooks.
type Pinner struct {
	current int
}

// New constructs an unpinned Pinner.
func New() *Pinner {
	return &Pinner{current: -1}
}

// Pin binds the current OS thread to cpuID.
func (p *Pinner) Pin(cpuID int) error {
	if err := setAffinityPlatform(cpuID); err != nil {
		return err
	}
	p.current = cpuID
	return nil
}

// Unpin releases any CPU binding on this thread.
func (p *Pinner) Unpin() error {
	if err := unsetAffinityPlatform(); err != nil {
		return err
	}
	p.current = -1
	return nil
}

// Get reports the currently pinned CPU, or -1 if unpinned.
func (p *Pinner) Get() (int, error) {
	return p.current, nil
}

var _ api.Affinity = (*Pinner)(nil)
