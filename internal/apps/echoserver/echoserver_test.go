package echoserver_test

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/soconnect-project/soconnect/internal/apps/echoserver"
	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/latency"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildClientPacket(t *testing.T, pool *mbufpool.Pool, clientSendNS int64) *mbuf.Mbuf {
	t.Helper()

	payloadLen := latency.WireLen(latency.TagFull)
	var hdr header.PktHdr
	status := header.GenerateRandom(&hdr, header.EtherHeaderLen+header.IPv4HeaderLen+header.UDPHeaderLen+payloadLen,
		header.L3IPv4, header.L4UDP, 0, 1, rss.Key{}, 0, false, new(atomic.Bool))
	require.True(t, status.OK())

	payload := make([]byte, payloadLen)
	latency.EncodeClientSend(payload, clientSendNS)
	hdr.Payload = payload

	m, status := header.AssembleIntoMbuf(pool, &hdr)
	require.True(t, status.OK())
	return m
}

func TestProcessPkt_EchoesAndStampsTimestamps(t *testing.T) {
	const port = 0
	const queue = 0

	sim := driver.NewSimDriver(map[int]int{port: port}) // loops back to itself
	pool := mbufpool.New("rx_p0_q0", 8, mbuf.DefaultDataRoom)

	hooks := echoserver.New(sim, testLogger(), 1024)
	rt := &apphooks.Runtime[echoserver.Config, echoserver.State]{
		PerCoreState: make([]echoserver.State, 1),
		Ports:        []apphooks.PortView{{PhysicalID: port, LogicalID: port}},
		Quit:         new(atomic.Bool),
	}
	require.True(t, hooks.ProcessEnter(rt, 0).OK())

	pkt := buildClientPacket(t, pool, 1_000_000)

	status := hooks.ProcessPkt([]*mbuf.Mbuf{pkt}, rt, queue, port)
	require.True(t, status.OK())
	require.EqualValues(t, 1, rt.PerCoreState[0].RxPackets)
	require.EqualValues(t, 1, rt.PerCoreState[0].TxPackets)
	require.Equal(t, 1, rt.PerCoreState[0].Ring.Len())

	half := rt.PerCoreState[0].Ring.Snapshot()[0]
	require.Equal(t, int64(1_000_000), half.ClientSendNS)
	require.GreaterOrEqual(t, half.ServerRecvNS, int64(0))

	// The reflected packet should now be sitting in the sim driver's
	// receive ring for the same port/queue (loopback topology).
	out := make([]*mbuf.Mbuf, 1)
	n := sim.RxBurst(port, queue, out, 1)
	require.Equal(t, 1, n)

	payloadOffset := header.EtherHeaderLen + header.IPv4HeaderLen + header.UDPHeaderLen
	full := latency.DecodeFull(out[0].Data[payloadOffset:out[0].Len], 0)
	require.Equal(t, int64(1_000_000), full.ClientSendNS)
	require.Greater(t, full.ServerRecvNS, int64(0))
	require.GreaterOrEqual(t, full.ServerSendNS, full.ServerRecvNS)
}

func TestProcessPkt_UnknownPortIsNotExist(t *testing.T) {
	sim := driver.NewSimDriver(nil)
	pool := mbufpool.New("rx_p0_q0", 4, mbuf.DefaultDataRoom)
	hooks := echoserver.New(sim, testLogger(), 16)
	rt := &apphooks.Runtime[echoserver.Config, echoserver.State]{
		PerCoreState: make([]echoserver.State, 1),
		Ports:        []apphooks.PortView{{PhysicalID: 5, LogicalID: 5}},
		Quit:         new(atomic.Bool),
	}
	require.True(t, hooks.ProcessEnter(rt, 0).OK())

	pkt := buildClientPacket(t, pool, 1)
	status := hooks.ProcessPkt([]*mbuf.Mbuf{pkt}, rt, 0, 99)
	require.Equal(t, apphooks.StatusNotExist, status)
}

func TestParseKVPair_RejectsUnknownKeys(t *testing.T) {
	hooks := echoserver.New(driver.NewSimDriver(nil), testLogger(), 16)
	rt := &apphooks.Runtime[echoserver.Config, echoserver.State]{Quit: new(atomic.Bool)}
	require.Equal(t, apphooks.StatusInvalidValue, hooks.ParseKVPair("anything", "value", rt))
}
