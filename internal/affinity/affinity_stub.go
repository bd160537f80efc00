//go:build !linux && !windows
// +build !linux,!windows

// File: internal/affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

import "errors"

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}

func unsetAffinityPlatform() error {
	return errors.New("affinity: not supported on this platform")
}
