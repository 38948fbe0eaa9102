package cmsketch

import (
	"log/slog"
	"strconv"

	"github.com/soconnect-project/soconnect/internal/header"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// flowKeyLen is the number of bytes this module hashes per packet:
// IPv4 source + destination (4 each), protocol (1), source + destination
// port (2 each). The original's TUPLE_KEY_LENGTH (57) sizes a buffer
// wide enough for IPv6 and VLAN-tagged variants this port does not
// carry (spec's IPv4/UDP-only packet-generation scope), so the key here
// is sized to what it actually hashes instead of padding to match.
const flowKeyLen = 4 + 4 + 1 + 2 + 2

// Config is the count-min sketch's application configuration (spec §6
// key/value file keys sketch_rows, sketch_counters_per_row).
type Config struct {
	// NbRows is the number of independent hash rows per sketch.
	NbRows uint32

	// NbCountersPerRow is the width of each hash row.
	NbCountersPerRow uint32

	// SeedBase derives each row's hash seed via DefaultSeeds.
	SeedBase uint64
}

// State is the per-core state the framework replicates one per worker:
// a private Sketch (no cross-worker mutation, so no lock is needed)
// plus the packet/byte counters the original's _per_core_meta tracks.
type State struct {
	Sketch  *Sketch
	NbPkts  uint64
	NbBytes uint64
}

// Hooks implements apphooks.WorkerHooks[Config, State] and
// apphooks.AppConfig[Config, State]. Total is the process-wide sketch
// WorkerAllExit folds every worker's private Sketch into.
type Hooks struct {
	Logger  *slog.Logger
	Total   *Sketch
	Metrics *metrics.Collector

	lastPkts map[int]uint64
}

// New creates count-min sketch hooks; log receives rejected
// configuration keys.
func New(log *slog.Logger) *Hooks {
	return &Hooks{Logger: log, lastPkts: make(map[int]uint64)}
}

// InitInternal allocates the process-wide aggregate sketch once the
// framework has finished parsing Config.
func (h *Hooks) InitInternal(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	if rt.Config.NbRows == 0 || rt.Config.NbCountersPerRow == 0 {
		return apphooks.StatusInvalidValue
	}
	h.Total = NewSketch(rt.Config.NbRows, rt.Config.NbCountersPerRow, DefaultSeeds(rt.Config.NbRows, rt.Config.SeedBase))
	return apphooks.StatusOK
}

// ParseKVPair recognizes sketch_rows, sketch_counters_per_row, and
// sketch_seed; any other key is rejected.
func (h *Hooks) ParseKVPair(key, value string, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	switch key {
	case "sketch_rows":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return apphooks.StatusInvalidValue
		}
		rt.Config.NbRows = uint32(n)
	case "sketch_counters_per_row":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return apphooks.StatusInvalidValue
		}
		rt.Config.NbCountersPerRow = uint32(n)
	case "sketch_seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return apphooks.StatusInvalidValue
		}
		rt.Config.SeedBase = n
	default:
		h.Logger.Error("cmsketch: unrecognized configuration key", "key", key, "value", value)
		return apphooks.StatusInvalidValue
	}
	return apphooks.StatusOK
}

// ProcessEnter allocates this worker's private sketch, sized and
// seeded identically to the process-wide aggregate.
func (h *Hooks) ProcessEnter(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	rt.PerCoreState[logicalCore].Sketch = NewSketch(
		rt.Config.NbRows, rt.Config.NbCountersPerRow,
		DefaultSeeds(rt.Config.NbRows, rt.Config.SeedBase))
	return apphooks.StatusOK
}

// ProcessExit is a no-op; WorkerAllExit performs the merge once every
// worker has stopped.
func (h *Hooks) ProcessExit(rt *apphooks.Runtime[Config, State], logicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// WorkerAllExit folds every worker's private sketch into the
// process-wide aggregate, matching the original's end-of-run
// __cm_evaluate report (accuracy/throughput figures computed over the
// combined counters, not per-core ones).
func (h *Hooks) WorkerAllExit(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	for i := range rt.PerCoreState {
		if s := rt.PerCoreState[i].Sketch; s != nil {
			s.MergeInto(h.Total)
		}
	}
	return apphooks.StatusOK
}

// ProcessClient is not implemented: cmsketch only runs workers in the
// server role, counting whatever arrives.
func (h *Hooks) ProcessClient(rt *apphooks.Runtime[Config, State], queue int, readyToExit *bool) apphooks.Status {
	return apphooks.StatusNotImplemented
}

// ProcessPkt hashes each IPv4/UDP packet's 5-tuple into this worker's
// sketch and frees it: a monitoring-only module, it never forwards.
//
// queue doubles as the PerCoreState index (see echoserver/echoclient's
// identical assumption: 1:1 queue-per-worker topology, spec §4.5).
func (h *Hooks) ProcessPkt(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State], queue, recvPort int) apphooks.Status {
	state := &rt.PerCoreState[queue]

	var key [flowKeyLen]byte
	for _, pkt := range pkts {
		state.NbPkts++
		state.NbBytes += uint64(pkt.Len)

		if pkt.NbSegs == 1 && extractFlowKey(pkt.Data[:pkt.Len], key[:]) {
			state.Sketch.Update(key[:])
		}
		pkt.Free()
	}
	return apphooks.StatusOK
}

// ProcessPktDrop is not implemented: cmsketch never transmits, so
// nothing ever reaches TransmitBurst's drop path.
func (h *Hooks) ProcessPktDrop(pkts []*mbuf.Mbuf, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	return apphooks.StatusNotImplemented
}

// extractFlowKey copies b's IPv4 source/destination address, protocol
// number, and (for UDP/TCP) source/destination port into key, reporting
// false if b is too short to be a well-formed IPv4 frame.
func extractFlowKey(b []byte, key []byte) bool {
	if len(b) < header.EtherHeaderLen+header.IPv4HeaderLen {
		return false
	}
	ip := b[header.EtherHeaderLen:]
	proto := ip[9]

	off := 0
	off += copy(key[off:], ip[12:16]) // src addr
	off += copy(key[off:], ip[16:20]) // dst addr
	key[off] = proto
	off++

	l4 := b[header.EtherHeaderLen+header.IPv4HeaderLen:]
	if len(l4) >= 4 {
		off += copy(key[off:], l4[0:4]) // src/dst port, UDP and TCP alike
	}
	return true
}
