// File: internal/bucket/stats_test.go
// Author: momentics <momentics@gmail.com>

package bucket

import "testing"

func TestStatsSnapshotReset(t *testing.T) {
	s := NewStats()
	s.AddPacket(3, 10)
	s.AddPacket(3, 5)
	s.SetFlowCount(3, 2)

	snap := s.Snapshot(true)
	if snap[3].PacketCount != 15 || snap[3].FlowCount != 2 {
		t.Fatalf("unexpected counters: %+v", snap[3])
	}

	snap = s.Snapshot(false)
	if snap[3].PacketCount != 0 {
		t.Fatalf("reset=true must zero packet counters, got %d", snap[3].PacketCount)
	}
	if snap[3].FlowCount != 2 {
		t.Fatalf("flow count must survive reset, got %d", snap[3].FlowCount)
	}
}

func TestStatsSnapshotWithoutResetPreserves(t *testing.T) {
	s := NewStats()
	s.AddPacket(100, 7)
	_ = s.Snapshot(false)
	snap := s.Snapshot(false)
	if snap[100].PacketCount != 7 {
		t.Fatalf("reset=false must preserve counters, got %d", snap[100].PacketCount)
	}
}

func TestBucketPendingMove(t *testing.T) {
	tbl := NewTable()
	b := tbl.Buckets[42]

	if _, pending := b.PendingMoveTo(); pending {
		t.Fatal("fresh bucket must have no pending move")
	}
	b.ClearPendingMove(1)
	if got := b.OwnerCore.Load(); got != 1 {
		t.Fatalf("owner = %d, want 1", got)
	}

	b.MarkPendingMove(2)
	dst, pending := b.PendingMoveTo()
	if !pending || dst != 2 {
		t.Fatalf("pending move = %d/%v, want 2/true", dst, pending)
	}
	if got := b.OwnerCore.Load(); got != 1 {
		t.Fatal("owner must not change until the move commits")
	}

	b.ClearPendingMove(2)
	if got := b.OwnerCore.Load(); got != 2 {
		t.Fatalf("owner = %d after commit, want 2", got)
	}
	if _, pending := b.PendingMoveTo(); pending {
		t.Fatal("commit must clear the pending marker")
	}
}
