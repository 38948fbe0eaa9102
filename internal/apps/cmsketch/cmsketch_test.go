package cmsketch_test

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/soconnect-project/soconnect/internal/apps/cmsketch"
	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildPacket(t *testing.T, pool *mbufpool.Pool, srcPort, dstPort uint16) *mbuf.Mbuf {
	t.Helper()
	var hdr header.PktHdr
	status := header.GenerateRandom(&hdr, header.EtherHeaderLen+header.IPv4HeaderLen+header.UDPHeaderLen,
		header.L3IPv4, header.L4UDP, 0, 1, rss.Key{}, 0, false, new(atomic.Bool))
	require.True(t, status.OK())

	m, status := header.AssembleIntoMbuf(pool, &hdr)
	require.True(t, status.OK())

	// GenerateRandom picked random addresses and ports and already built
	// the wire images from them, so write a fixed flow into the assembled
	// bytes: equal (srcPort, dstPort) arguments give equal flow keys.
	ip := m.Data[header.EtherHeaderLen:]
	copy(ip[12:20], []byte{10, 0, 0, 1, 10, 0, 0, 2})
	l4 := m.Data[header.EtherHeaderLen+header.IPv4HeaderLen:]
	binary.BigEndian.PutUint16(l4[0:2], srcPort)
	binary.BigEndian.PutUint16(l4[2:4], dstPort)
	return m
}

// flowKeyOf rebuilds the same 13-byte flow key cmsketch's unexported
// extractFlowKey computes, so tests can check a known flow's estimate
// without reaching into package internals.
func flowKeyOf(pkt *mbuf.Mbuf) []byte {
	ip := pkt.Data[header.EtherHeaderLen:]
	l4 := pkt.Data[header.EtherHeaderLen+header.IPv4HeaderLen:]
	key := make([]byte, 0, 13)
	key = append(key, ip[12:16]...)
	key = append(key, ip[16:20]...)
	key = append(key, ip[9])
	key = append(key, l4[0:4]...)
	return key
}

func newRuntime(t *testing.T, hooks *cmsketch.Hooks, nbCores int) *apphooks.Runtime[cmsketch.Config, cmsketch.State] {
	t.Helper()
	rt := &apphooks.Runtime[cmsketch.Config, cmsketch.State]{
		Config:       cmsketch.Config{NbRows: 4, NbCountersPerRow: 64, SeedBase: 7},
		PerCoreState: make([]cmsketch.State, nbCores),
		Quit:         new(atomic.Bool),
	}
	require.True(t, hooks.InitInternal(rt).OK())
	for i := 0; i < nbCores; i++ {
		require.True(t, hooks.ProcessEnter(rt, i).OK())
	}
	return rt
}

func TestProcessPkt_CountsFlowFrequency(t *testing.T) {
	hooks := cmsketch.New(testLogger())
	rt := newRuntime(t, hooks, 1)
	pool := mbufpool.New("rx", 16, mbuf.DefaultDataRoom)

	const queue = 0
	pkts := []*mbuf.Mbuf{
		buildPacket(t, pool, 1000, 2000),
		buildPacket(t, pool, 1000, 2000),
		buildPacket(t, pool, 1000, 2000),
		buildPacket(t, pool, 3000, 4000),
	}
	status := hooks.ProcessPkt(pkts, rt, queue, 0)
	require.True(t, status.OK())
	require.EqualValues(t, 4, rt.PerCoreState[0].NbPkts)

	flowA := flowKeyOf(pkts[0])
	est := rt.PerCoreState[0].Sketch.Estimate(flowA)
	require.GreaterOrEqual(t, est, uint32(3))
}

func TestWorkerAllExit_MergesPerCoreSketches(t *testing.T) {
	hooks := cmsketch.New(testLogger())
	rt := newRuntime(t, hooks, 2)
	pool := mbufpool.New("rx", 16, mbuf.DefaultDataRoom)

	require.True(t, hooks.ProcessPkt([]*mbuf.Mbuf{buildPacket(t, pool, 10, 20)}, rt, 0, 0).OK())
	require.True(t, hooks.ProcessPkt([]*mbuf.Mbuf{buildPacket(t, pool, 10, 20)}, rt, 1, 0).OK())

	require.True(t, hooks.WorkerAllExit(rt).OK())
	require.NotNil(t, hooks.Total)
}

func TestParseKVPair_RejectsUnknownKeys(t *testing.T) {
	hooks := cmsketch.New(testLogger())
	rt := &apphooks.Runtime[cmsketch.Config, cmsketch.State]{Quit: new(atomic.Bool)}
	require.Equal(t, apphooks.StatusInvalidValue, hooks.ParseKVPair("anything", "value", rt))

	require.True(t, hooks.ParseKVPair("sketch_rows", "4", rt).OK())
	require.EqualValues(t, 4, rt.Config.NbRows)
	require.Equal(t, apphooks.StatusInvalidValue, hooks.ParseKVPair("sketch_rows", "not-a-number", rt))
}

func TestInitInternal_RejectsZeroDimensions(t *testing.T) {
	hooks := cmsketch.New(testLogger())
	rt := &apphooks.Runtime[cmsketch.Config, cmsketch.State]{Quit: new(atomic.Bool)}
	require.Equal(t, apphooks.StatusInvalidValue, hooks.InitInternal(rt))
}
