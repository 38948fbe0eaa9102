// Package echoclient implements the echo-client application module: a
// WorkerHooks consumer that rate-shapes IPv4/UDP bursts carrying a
// TsTable(Full) payload (spec §4.7), reflects off an echoserver peer,
// and records completed round trips into a per-core diagnostic ring
// (spec §8 scenario S2).
//
// Grounded on original_source's sc_echo_client/echo_client.c: a
// gettimeofday-stamped send loop paced against a target rate, with a
// receive pass each iteration to drain echoes. This port replaces the
// manual rate bookkeeping with internal/rategen's exponential
// inter-burst generator and the manual timestamp fields with
// internal/latency's TsTable wire codec.
package echoclient

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/latency"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/internal/rategen"
	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/internal/worker"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// Config is the echo client's application configuration.
type Config struct {
	// Port is the logical port id to send bursts on and receive
	// echoes from.
	Port int

	// BurstSize is the number of packets sent per paced burst.
	BurstSize int

	// PacketRate is the aggregate packet rate, across all sender
	// workers, the rate generator shapes towards (spec §4.7).
	PacketRate int

	// NbSenderCores is the number of workers sharing PacketRate (spec
	// §4.7's "R/nb_sender_cores").
	NbSenderCores int

	// TotalToSend is how many packets each sender worker emits before
	// it waits out remaining echoes and signals ready-to-exit.
	TotalToSend int

	// RingCapacity bounds the per-worker diagnostic ring.
	RingCapacity int
}

// State is the per-core state the framework replicates one per worker.
type State struct {
	Sent     uint64
	Received uint64
	Ring     *latency.Ring

	hdr     header.PktHdr
	gen     *rategen.Generator
	nextAt  time.Time
	payload []byte
}

// Hooks implements apphooks.WorkerHooks[Config, State]. Driver and Pool
// are internal-only fields injected by the caller, mirroring
// echoserver.Hooks.
type Hooks struct {
	Driver driver.Driver
	Pool   *mbufpool.Pool
	Logger *slog.Logger
	Config Config

	// Metrics is optional; when set, ControlInfly reports per-core
	// Sent/Received counter deltas to it.
	Metrics      *metrics.Collector
	lastSent     map[int]uint64
	lastReceived map[int]uint64

	// DroppedPackets counts packets ProcessPktDrop has freed after a
	// transmit burst could not place them, across every worker (see
	// echoserver.Hooks.DroppedPackets).
	DroppedPackets atomic.Uint64
}

// New creates echo-client hooks sending on d, drawing send buffers from
// pool, shaped per cfg.
func New(d driver.Driver, pool *mbufpool.Pool, log *slog.Logger, cfg Config) *Hooks {
	return &Hooks{
		Driver:       d,
		Pool:         pool,
		Logger:       log,
		Config:       cfg,
		lastSent:     make(map[int]uint64),
		lastReceived: make(map[int]uint64),
	}
}

// ProcessEnter builds this worker's reusable packet prototype, seeds
// its rate generator, and allocates its diagnostic ring.
func (h *Hooks) ProcessEnter(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	st := &rt.PerCoreState[logicalCore]
	st.Ring = latency.NewRing(h.Config.RingCapacity)
	st.gen = rategen.New(h.Config.BurstSize, h.Config.PacketRate, h.Config.NbSenderCores, uint64(logicalCore)+1)
	st.nextAt = time.Now()

	payloadLen := latency.WireLen(latency.TagFull)
	status := header.GenerateRandom(&st.hdr,
		header.EtherHeaderLen+header.IPv4HeaderLen+header.UDPHeaderLen+payloadLen,
		header.L3IPv4, header.L4UDP, 0, 1, rss.Key{}, 0, false, rt.Quit)
	if !status.OK() {
		return status
	}
	st.payload = make([]byte, payloadLen)
	st.hdr.Payload = st.payload
	return apphooks.StatusOK
}

// ProcessExit is a no-op; results are read from rt.PerCoreState.
func (h *Hooks) ProcessExit(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// ProcessPkt is not implemented: echoclient only runs workers in the
// client role.
func (h *Hooks) ProcessPkt(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State], queue, recvPort int) apphooks.Status {
	return apphooks.StatusNotImplemented
}

// ProcessPktDrop frees the packets a transmit burst could not place
// after exhausting its retries and counts them (see
// echoserver.Hooks.ProcessPktDrop).
func (h *Hooks) ProcessPktDrop(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	h.DroppedPackets.Add(uint64(len(pkts)))
	for _, pkt := range pkts {
		pkt.Free()
	}
	return apphooks.StatusOK
}

// ProcessClient paces sends per st.gen, drains echoes every iteration,
// and signals readyToExit once every sent packet has returned or been
// counted as lost.
func (h *Hooks) ProcessClient(rt *apphooks.Runtime[Config, State], queue int, readyToExit *bool) apphooks.Status {
	st := &rt.PerCoreState[queue]

	var physicalPort int
	found := false
	for _, p := range rt.Ports {
		if p.LogicalID == h.Config.Port {
			physicalPort = p.PhysicalID
			found = true
			break
		}
	}
	if !found {
		return apphooks.StatusNotExist
	}

	if st.Sent < uint64(h.Config.TotalToSend) && !time.Now().Before(st.nextAt) {
		if status := h.sendBurst(rt, st, physicalPort, queue); !status.OK() {
			return status
		}
		st.nextAt = time.Now().Add(st.gen.Next())
	}

	h.drainEchoes(rt, st, physicalPort, queue)

	if st.Sent >= uint64(h.Config.TotalToSend) && st.Received >= st.Sent {
		*readyToExit = true
	}
	return apphooks.StatusOK
}

// sendBurst emits one rate-shaped burst of Config.BurstSize packets,
// each carrying a freshly stamped client-send timestamp.
func (h *Hooks) sendBurst(rt *apphooks.Runtime[Config, State], st *State, physicalPort, queue int) apphooks.Status {
	burst := make([]*mbuf.Mbuf, h.Config.BurstSize)
	latency.EncodeClientSend(st.payload, time.Now().UnixNano())
	st.hdr.Payload = st.payload

	if status := header.GenerateBurstFastV4UDP(h.Pool, &st.hdr, burst, h.Config.BurstSize); !status.OK() {
		return status
	}

	status := worker.TransmitBurst(h.Driver, physicalPort, queue, burst, rt, h, h.Metrics)
	if status.OK() {
		st.Sent += uint64(h.Config.BurstSize)
		if h.Metrics != nil {
			for i := 0; i < h.Config.BurstSize; i++ {
				h.Metrics.IncRSSQueueSelected(h.Config.Port, queue)
			}
		}
	}
	return status
}

// drainEchoes receives every echoed packet currently available and
// folds each into a completed TsTable appended to st.Ring.
func (h *Hooks) drainEchoes(rt *apphooks.Runtime[Config, State], st *State, physicalPort, queue int) {
	payloadOffset := header.EtherHeaderLen + header.IPv4HeaderLen + header.UDPHeaderLen
	burst := make([]*mbuf.Mbuf, worker.MaxRxBurst)
	for {
		n := h.Driver.RxBurst(physicalPort, queue, burst, worker.MaxRxBurst)
		if n == 0 {
			return
		}
		clientRecvNS := time.Now().UnixNano()
		for _, pkt := range burst[:n] {
			if pkt.NbSegs == 1 && pkt.Len >= payloadOffset+latency.WireLen(latency.TagFull) {
				st.Ring.Append(latency.DecodeFull(pkt.Data[payloadOffset:pkt.Len], clientRecvNS))
				st.Received++
			}
			pkt.Free()
		}
	}
}
