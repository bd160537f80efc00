// File: internal/runtime/runtime_test.go
// Author: momentics <momentics@gmail.com>

package runtime

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/nic"
)

type countingNF struct {
	mu        sync.Mutex
	delivered int
}

func (n *countingNF) ProcessBatch(_ api.PipelineContext, batch []*api.Packet) {
	n.mu.Lock()
	n.delivered += len(batch)
	n.mu.Unlock()
	for _, p := range batch {
		p.Free()
	}
}

func (n *countingNF) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivered
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() control.WorkerConfig {
	cfg := control.DefaultWorkerConfig()
	cfg.NumNormalCores = 1
	cfg.NumReservedCores = 1
	return cfg
}

func buildUDP(t *testing.T, srcPort uint16) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}}
	udp := layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload("y")))
	return buf.Bytes()
}

func TestRuntimeEndToEndDelivery(t *testing.T) {
	nf := &countingNF{}
	rt, err := New(testConfig(), WithLogger(quietLogger()), WithNF(nf))
	require.NoError(t, err)

	require.NoError(t, rt.Start(context.Background()))
	defer rt.Shutdown()

	adapter := rt.Nic().(*nic.FakeAdapter)
	const total = 64
	pkts := make([]*api.Packet, total)
	for i := range pkts {
		pkts[i] = &api.Packet{Buf: api.Buffer{Data: buildUDP(t, 1000)}, FlowSlot: api.NoFlowSlot}
	}
	require.Equal(t, total, adapter.Inject(0, pkts))

	deadline := time.Now().Add(2 * time.Second)
	for nf.count() < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, total, nf.count())
}

func TestRuntimeStatsShape(t *testing.T) {
	rt, err := New(testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)

	stats := rt.Stats()
	require.Equal(t, []int{0}, stats.ActiveCores, "one normal core configured")
	require.Contains(t, stats.DropsByClass, "SuperFlow")
	require.Contains(t, stats.DropsByClass, "NoRoom")
	require.Zero(t, stats.EpochID)
}

func TestRuntimeAddCoreValidation(t *testing.T) {
	rt, err := New(testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.ErrorIs(t, rt.AddNormalCore(0), api.ErrAlreadyExists, "core 0 already exists")
	require.ErrorIs(t, rt.AddReservedCore(1), api.ErrAlreadyExists, "core 1 is the reserved core")
	require.ErrorIs(t, rt.AddNormalCore(1000), api.ErrInvalidArgument)

	require.NoError(t, rt.AddNormalCore(2), "standby normal core")
	require.NoError(t, rt.AddReservedCore(3))
}

func TestRuntimeSetProfileCurve(t *testing.T) {
	rt, err := New(testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.Error(t, rt.SetProfileCurve(nil))
	require.Error(t, rt.SetProfileCurve([]control.ProfileSample{{FlowCount: 0, MaxPps: 0}}))
	require.NoError(t, rt.SetProfileCurve([]control.ProfileSample{{FlowCount: 0, MaxPps: 500_000}}))
}

func TestRuntimeDebugProbes(t *testing.T) {
	rt, err := New(testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)

	for _, name := range []string{"swqueues", "flow_tables", "bucket_owners"} {
		_, ok := rt.Probe(name)
		require.True(t, ok, "default probe %q missing", name)
	}
	_, ok := rt.Probe("nope")
	require.False(t, ok)

	rt.RegisterDebugProbe("custom", func() any { return 42 })
	v, ok := rt.Probe("custom")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestRuntimeCommandSurface(t *testing.T) {
	rt, err := New(testConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, rt.ClearCore(0))
	require.NoError(t, rt.SetBurst(0, 16))
	require.ErrorIs(t, rt.ClearCore(99), api.ErrNotFound)
	require.ErrorIs(t, rt.SetBurst(99, 16), api.ErrNotFound)
}
