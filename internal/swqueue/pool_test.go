// File: internal/swqueue/pool_test.go
// Author: momentics <momentics@gmail.com>

package swqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/nfvworker/internal/api"
)

func TestPoolClaimReleaseLifecycle(t *testing.T) {
	p := NewPool(2, 16)

	id, ok := p.Claim(3)
	require.True(t, ok)
	slot := p.Slot(id)
	require.Equal(t, Claimed, slot.State())
	prod, bound := slot.ProducerCore()
	require.True(t, bound)
	require.Equal(t, 3, prod)
	require.EqualValues(t, 0, slot.IdleEpochs())

	require.True(t, p.Release(id))
	require.Equal(t, Free, slot.State())
	_, bound = slot.ProducerCore()
	require.False(t, bound)
	require.EqualValues(t, -1, slot.IdleEpochs())
}

func TestPoolClaimExhaustion(t *testing.T) {
	p := NewPool(2, 16)
	_, ok := p.Claim(0)
	require.True(t, ok)
	_, ok = p.Claim(0)
	require.True(t, ok)
	_, ok = p.Claim(0)
	require.False(t, ok, "pool of 2 must refuse a third claim")
}

func TestPoolFullStateMachine(t *testing.T) {
	p := NewPool(1, 16)
	id, _ := p.Claim(0)

	require.False(t, p.ToRest(id), "Claimed cannot go straight to Draining")
	require.True(t, p.ToWork(id, 5))
	require.Equal(t, Active, p.Slot(id).State())
	cons, bound := p.Slot(id).ConsumerCore()
	require.True(t, bound)
	require.Equal(t, 5, cons)

	require.False(t, p.Release(id), "Active slot cannot be released directly")
	require.True(t, p.ToRest(id))
	require.Equal(t, Draining, p.Slot(id).State())

	require.True(t, p.FinishDrain(id))
	require.Equal(t, Free, p.Slot(id).State())
	_, bound = p.Slot(id).ConsumerCore()
	require.False(t, bound)
}

func TestPoolFinishDrainRequiresEmptyRing(t *testing.T) {
	p := NewPool(1, 16)
	id, _ := p.Claim(0)
	p.ToWork(id, 1)

	pkt := &api.Packet{}
	queued := p.EnqueueBurst(id, []*api.Packet{pkt}, func(*api.Packet) { t.Fatal("unexpected drop") })
	require.Equal(t, 1, queued)
	p.ToRest(id)

	require.False(t, p.FinishDrain(id), "ring still holds a packet")

	out := make([]*api.Packet, 4)
	require.Equal(t, 1, p.DequeueBurst(id, out))
	require.True(t, p.FinishDrain(id))
}

func TestPoolEnqueueOverflowDrops(t *testing.T) {
	p := NewPool(1, 2)
	id, _ := p.Claim(0)

	pkts := []*api.Packet{{}, {}, {}, {}}
	dropped := 0
	queued := p.EnqueueBurst(id, pkts, func(*api.Packet) { dropped++ })
	require.Equal(t, 2, queued)
	require.Equal(t, 2, dropped)
	require.EqualValues(t, 2, p.Slot(id).AssignedPackets())
}

func TestPoolIdleTick(t *testing.T) {
	p := NewPool(1, 16)
	id, _ := p.Claim(0)
	for i := 0; i < 3; i++ {
		p.TickIdle(id)
	}
	require.EqualValues(t, 3, p.Slot(id).IdleEpochs())

	p.EnqueueBurst(id, []*api.Packet{{}}, func(*api.Packet) {})
	require.EqualValues(t, 0, p.Slot(id).IdleEpochs(), "enqueue resets idle age")
}
