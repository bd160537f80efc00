// File: internal/swqueue/bus_test.go
// Author: momentics <momentics@gmail.com>

package swqueue

import "testing"

func TestBusRoutesToAddressedCore(t *testing.T) {
	b := NewBus([]int{4, 5}, 8)

	if !b.ToWork(4, 7) {
		t.Fatal("ToWork to registered core must succeed")
	}
	if b.ToWork(9, 7) {
		t.Fatal("ToWork to unknown core must fail")
	}

	if _, ok := b.PollActivate(5); ok {
		t.Fatal("message must not leak to another core")
	}
	msg, ok := b.PollActivate(4)
	if !ok || msg.QueueID != 7 {
		t.Fatalf("expected queue 7 for core 4, got %+v ok=%v", msg, ok)
	}
	if _, ok := b.PollActivate(4); ok {
		t.Fatal("ring must be empty after poll")
	}
}

func TestBusActivateDeactivateAreSeparateRings(t *testing.T) {
	b := NewBus([]int{1}, 8)
	b.ToWork(1, 2)
	b.ToRest(1, 3)

	act, ok := b.PollActivate(1)
	if !ok || act.QueueID != 2 {
		t.Fatalf("activate ring: got %+v ok=%v", act, ok)
	}
	deact, ok := b.PollDeactivate(1)
	if !ok || deact.QueueID != 3 {
		t.Fatalf("deactivate ring: got %+v ok=%v", deact, ok)
	}
}
