//go:build linux
// +build linux

// File: internal/affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux affinity via golang.org/x/sys/unix's sched_setaffinity, avoiding
// cgo so the core binary stays a single static executable.

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

func unsetAffinityPlatform() error {
	var set unix.CPUSet
	ncpu := runtime.NumCPU()
	for i := 0; i < ncpu; i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}
