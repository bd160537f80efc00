//go:build linux
// +build linux

// File: internal/nic/readiness_linux.go
// Package nic
// Author: momentics <momentics@gmail.com>
//
// Linux readiness backend: one eventfd per qid, registered with a shared
// epoll instance via golang.org/x/sys/unix.

package nic

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type readiness struct {
	mu   sync.Mutex
	epfd int
	efds map[int]int // qid -> eventfd
}

func newReadiness() readiness {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return readiness{epfd: -1, efds: make(map[int]int)}
	}
	return readiness{epfd: epfd, efds: make(map[int]int)}
}

func (r *readiness) fdFor(qid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fd, ok := r.efds[qid]; ok {
		return fd
	}
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil || r.epfd < 0 {
		return -1
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	r.efds[qid] = fd
	return fd
}

func (r *readiness) signal(qid int) {
	fd := r.fdFor(qid)
	if fd < 0 {
		return
	}
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(fd, buf[:])
}

func (r *readiness) wait(qid int, timeout time.Duration) bool {
	fd := r.fdFor(qid)
	if fd < 0 || r.epfd < 0 {
		time.Sleep(timeout)
		return false
	}
	var events [1]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], int(timeout/time.Millisecond))
	if err != nil || n == 0 {
		return false
	}
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
	return events[0].Fd == int32(fd)
}

func (r *readiness) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fd := range r.efds {
		_ = unix.Close(fd)
	}
	if r.epfd >= 0 {
		return unix.Close(r.epfd)
	}
	return nil
}
