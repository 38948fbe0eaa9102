package echoserver

import "github.com/soconnect-project/soconnect/pkg/apphooks"

// ControlEnter records nothing; counters start at zero along with the
// rest of State.
func (h *Hooks) ControlEnter(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// ControlInfly pushes this worker's cumulative Rx/Tx counters into the
// Prometheus collector as counter deltas since the previous tick --
// reading rt.PerCoreState from the control-plane goroutine while the
// worker goroutine keeps writing it is the same owning-worker-writable,
// control-plane-readable hazard spec §5 names for last_recv_record_timestamp.
func (h *Hooks) ControlInfly(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	if h.Metrics == nil {
		return apphooks.StatusNotImplemented
	}
	logicalCore := logicalCoreFor(rt, physicalCore)
	if logicalCore < 0 {
		return apphooks.StatusNotExist
	}
	state := &rt.PerCoreState[logicalCore]

	// Port label 0: this module expects a single-port echo topology
	// (spec §8 scenario S2), so logicalCore alone identifies the series.
	rx := state.RxPackets
	tx := state.TxPackets
	if d := rx - h.lastRx[logicalCore]; d > 0 {
		h.Metrics.IncRxPackets(0, logicalCore, int(d))
		h.lastRx[logicalCore] = rx
	}
	if d := tx - h.lastTx[logicalCore]; d > 0 {
		h.Metrics.IncTxPackets(0, logicalCore, int(d))
		h.lastTx[logicalCore] = tx
	}
	h.Metrics.IncWorkerIntervals(logicalCore)
	return apphooks.StatusOK
}

// ControlExit performs no additional teardown.
func (h *Hooks) ControlExit(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

func logicalCoreFor(rt *apphooks.Runtime[Config, State], physicalCore int) int {
	for i, pc := range rt.Cores {
		if pc == physicalCore {
			return i
		}
	}
	return -1
}
