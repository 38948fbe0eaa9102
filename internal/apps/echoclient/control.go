package echoclient

import (
	"strconv"

	"github.com/soconnect-project/soconnect/internal/latency"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
)

// ControlEnter records nothing; counters start at zero along with the
// rest of State.
func (h *Hooks) ControlEnter(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// ControlInfly pushes this worker's cumulative Sent/Received counters
// into the Prometheus collector as deltas since the previous tick.
func (h *Hooks) ControlInfly(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	if h.Metrics == nil {
		return apphooks.StatusNotImplemented
	}
	logicalCore := -1
	for i, pc := range rt.Cores {
		if pc == physicalCore {
			logicalCore = i
			break
		}
	}
	if logicalCore < 0 {
		return apphooks.StatusNotExist
	}
	st := &rt.PerCoreState[logicalCore]

	if d := st.Sent - h.lastSent[logicalCore]; d > 0 {
		h.Metrics.IncTxPackets(h.Config.Port, logicalCore, int(d))
		h.lastSent[logicalCore] = st.Sent
	}
	if d := st.Received - h.lastReceived[logicalCore]; d > 0 {
		h.Metrics.IncRxPackets(h.Config.Port, logicalCore, int(d))
		h.lastReceived[logicalCore] = st.Received
	}
	h.Metrics.IncWorkerIntervals(logicalCore)

	// Tail latency is process-wide (spec §4.8), not per-worker; recompute
	// it once per tick off logicalCore 0's dispatch rather than once per
	// worker.
	if logicalCore == 0 {
		h.reportTailLatency(rt)
	}
	return apphooks.StatusOK
}

// reportTailLatency merge-sorts every worker's completed round trips
// into one sample set and pushes the spec §4.8 percentiles to the
// collector.
func (h *Hooks) reportTailLatency(rt *apphooks.Runtime[Config, State]) {
	var samples []int64
	for i := range rt.PerCoreState {
		ring := rt.PerCoreState[i].Ring
		if ring == nil {
			continue
		}
		for _, ts := range ring.Snapshot() {
			samples = append(samples, ts.RoundTripNS()/1000)
		}
	}
	if len(samples) == 0 {
		return
	}
	for _, p := range latency.Percentiles {
		h.Metrics.SetTailLatencyMicros(strconv.FormatFloat(p, 'f', -1, 64), latency.TailLatency(samples, p))
	}
}

// ControlExit performs no additional teardown.
func (h *Hooks) ControlExit(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}
