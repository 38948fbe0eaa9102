// Package echoserver implements the echo-server application module:
// a WorkerHooks consumer that swaps every received IPv4/UDP packet's
// addressing and stamps the embedded timestamp table's server-recv and
// server-send slots before reflecting the packet back out the port it
// arrived on (spec §8 scenario S2).
//
// Grounded on original_source's sc_echo_server/echo_server.c
// _process_pkt: read the Ethernet header, swap source/destination,
// mark the packet for forwarding. This port adds the IPv4/UDP address
// swap and the TsTable stamping spec §4.7 layers on top, and resolves
// the forward decision into an immediate transmit since the framework
// boundary here has no separate "forward" out-parameter (see
// pkg/apphooks.WorkerHooks.ProcessPkt).
package echoserver

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/latency"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/internal/worker"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// Config is the echo server's (empty) application configuration; it
// recognizes no configuration keys of its own.
type Config struct{}

// State is the per-core state the framework replicates one per worker.
// Ring holds this worker's diagnostic Half-tagged observations
// (client-send, server-recv) -- spec §3's "Half by the server-side
// echo".
type State struct {
	RxPackets uint64
	TxPackets uint64
	Ring      *latency.Ring
}

// udpPayloadOffset is the fixed Ethernet+IPv4+UDP header length this
// module expects every packet to carry; echoserver handles only the
// IPv4/UDP wire shape scenario S2 describes.
const udpPayloadOffset = header.EtherHeaderLen + header.IPv4HeaderLen + header.UDPHeaderLen

// Hooks implements apphooks.WorkerHooks[Config, State]. It holds the
// driver reference needed to reflect packets back out -- an
// internal-only field, since pkg/apphooks itself must never import
// internal/driver (see DESIGN.md).
type Hooks struct {
	Driver       driver.Driver
	Logger       *slog.Logger
	RingCapacity int

	// Metrics is optional; when set, ControlInfly reports per-core
	// Rx/Tx counter deltas to it. lastRx/lastTx track the previously
	// reported cumulative value per logical core.
	Metrics *metrics.Collector
	lastRx  map[int]uint64
	lastTx  map[int]uint64

	// DroppedPackets counts packets ProcessPktDrop has freed after a
	// transmit burst could not place them, across every worker (spec
	// §6's nb_drop_pkt, process-wide rather than per-core since
	// process_pkt_drop receives no queue/logical-core argument).
	DroppedPackets atomic.Uint64
}

// New creates echo-server hooks that use d to retransmit echoed
// packets and keep at most ringCapacity diagnostic records per core.
func New(d driver.Driver, log *slog.Logger, ringCapacity int) *Hooks {
	return &Hooks{
		Driver:       d,
		Logger:       log,
		RingCapacity: ringCapacity,
		lastRx:       make(map[int]uint64),
		lastTx:       make(map[int]uint64),
	}
}

// ProcessEnter allocates this worker's diagnostic ring.
func (h *Hooks) ProcessEnter(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	rt.PerCoreState[logicalCore].Ring = latency.NewRing(h.RingCapacity)
	return apphooks.StatusOK
}

// ProcessExit is a no-op; the ring is read by the caller via rt.PerCoreState.
func (h *Hooks) ProcessExit(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// ProcessClient is not implemented: echoserver only runs workers in the
// server role.
func (h *Hooks) ProcessClient(rt *apphooks.Runtime[Config, State], queue int, readyToExit *bool) apphooks.Status {
	return apphooks.StatusNotImplemented
}

// ProcessPkt swaps each packet's Ethernet/IPv4/UDP addressing, stamps
// the embedded TsTable's server-recv and server-send slots, records a
// diagnostic Half entry, and reflects the packet back out recvPort.
//
// The worker's queue index doubles as its PerCoreState index: in the
// 1:1 queue-per-worker topology this module expects, queue equals the
// owning logical core (spec §4.5: "lcore_index mod nb_rx_rings_per_port").
func (h *Hooks) ProcessPkt(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State], queue, recvPort int) apphooks.Status {
	state := &rt.PerCoreState[queue]

	var physicalPort int
	found := false
	for _, p := range rt.Ports {
		if p.LogicalID == recvPort {
			physicalPort = p.PhysicalID
			found = true
			break
		}
	}
	if !found {
		for _, pkt := range pkts {
			pkt.Free()
		}
		return apphooks.StatusNotExist
	}

	reply := make([]*mbuf.Mbuf, 0, len(pkts))
	for _, pkt := range pkts {
		state.RxPackets++

		if pkt.NbSegs != 1 || pkt.Len < udpPayloadOffset+latency.WireLen(latency.TagFull) {
			pkt.Free()
			continue
		}

		recvNS := time.Now().UnixNano()

		swapEthernet(pkt.Data)
		swapIPv4(pkt.Data[header.EtherHeaderLen:])
		swapUDPPorts(pkt.Data[header.EtherHeaderLen+header.IPv4HeaderLen:])

		payload := pkt.Data[udpPayloadOffset:pkt.Len]
		sendNS := time.Now().UnixNano()
		latency.StampServerRecvAndSend(payload, recvNS, sendNS)
		state.Ring.Append(latency.HalfFromWire(payload))

		reply = append(reply, pkt)
	}

	if len(reply) == 0 {
		return apphooks.StatusOK
	}

	status := worker.TransmitBurst(h.Driver, physicalPort, queue, reply, rt, h, h.Metrics)
	if status.OK() {
		state.TxPackets += uint64(len(reply))
	}
	return status
}

// ProcessPktDrop frees the packets a transmit burst could not place
// after exhausting its retries and counts them (spec §6's
// process_pkt_drop correcting the optimistic forward count).
func (h *Hooks) ProcessPktDrop(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	h.DroppedPackets.Add(uint64(len(pkts)))
	for _, pkt := range pkts {
		pkt.Free()
	}
	return apphooks.StatusOK
}

// swapEthernet exchanges the source and destination MAC address fields
// of the 14-byte Ethernet header at the start of b.
func swapEthernet(b []byte) {
	var tmp [6]byte
	copy(tmp[:], b[0:6])
	copy(b[0:6], b[6:12])
	copy(b[6:12], tmp[:])
}

// swapIPv4 exchanges the source and destination address fields of the
// IPv4 header at the start of b.
func swapIPv4(b []byte) {
	var tmp [4]byte
	copy(tmp[:], b[12:16])
	copy(b[12:16], b[16:20])
	copy(b[16:20], tmp[:])
}

// swapUDPPorts exchanges the source and destination port fields of the
// UDP header at the start of b.
func swapUDPPorts(b []byte) {
	var tmp [2]byte
	copy(tmp[:], b[0:2])
	copy(b[0:2], b[2:4])
	copy(b[2:4], tmp[:])
}
