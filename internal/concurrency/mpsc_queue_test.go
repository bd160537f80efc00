package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestMPSCQueue_MultipleProducersSingleConsumer(t *testing.T) {
	q := NewMPSCQueue[int](4096)
	producers := 8
	itemsPerProducer := 5000

	var wg sync.WaitGroup
	var sentSum int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				val := pid*itemsPerProducer + i + 1
				for !q.Enqueue(val) {
				}
				atomic.AddInt64(&sentSum, int64(val))
			}
		}(p)
	}

	var receivedSum int64
	var received int
	total := producers * itemsPerProducer
	done := make(chan struct{})
	go func() {
		for received < total {
			if v, ok := q.Dequeue(); ok {
				receivedSum += int64(v)
				received++
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done

	if receivedSum != sentSum {
		t.Fatalf("sum mismatch: sent=%d received=%d", sentSum, receivedSum)
	}
}
