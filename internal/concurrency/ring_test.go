package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRingBuffer_SPSC(t *testing.T) {
	r := NewRingBuffer[int](1024)
	const n = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Enqueue(i) {
				runtime.Gosched()
			}
		}
	}()

	var sum int64
	go func() {
		defer wg.Done()
		received := 0
		for received < n {
			v, ok := r.Dequeue()
			if !ok {
				runtime.Gosched()
				continue
			}
			atomic.AddInt64(&sum, int64(v))
			received++
		}
	}()

	wg.Wait()
	want := int64(n*(n-1)) / 2
	if sum != want {
		t.Fatalf("sum mismatch: got %d want %d", sum, want)
	}
}

func TestRingBuffer_CapRoundsToPowerOfTwo(t *testing.T) {
	r := NewRingBuffer[int](100)
	if r.Cap() != 128 {
		t.Fatalf("expected cap 128, got %d", r.Cap())
	}
}

func TestRingBuffer_FullReturnsFalse(t *testing.T) {
	r := NewRingBuffer[int](2)
	if !r.Enqueue(1) || !r.Enqueue(2) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if r.Enqueue(3) {
		t.Fatal("expected enqueue on full ring to fail")
	}
}

func TestRingBuffer_DrainInto(t *testing.T) {
	r := NewRingBuffer[int](8)
	for i := 0; i < 5; i++ {
		r.Enqueue(i)
	}
	out := make([]int, 3)
	n := r.DrainInto(out)
	if n != 3 {
		t.Fatalf("expected 3 drained, got %d", n)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", r.Len())
	}
}
