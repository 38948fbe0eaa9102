package cmsketch

import "github.com/soconnect-project/soconnect/pkg/apphooks"

// ControlEnter records nothing; counters start at zero along with the
// rest of State.
func (h *Hooks) ControlEnter(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}

// ControlInfly pushes this worker's cumulative packet count into the
// Prometheus collector as a delta since the previous tick.
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

	if d := st.NbPkts - h.lastPkts[logicalCore]; d > 0 {
		h.Metrics.IncRxPackets(0, logicalCore, int(d))
		h.lastPkts[logicalCore] = st.NbPkts
	}
	h.Metrics.IncWorkerIntervals(logicalCore)
	return apphooks.StatusOK
}

// ControlExit performs no additional teardown.
func (h *Hooks) ControlExit(rt *apphooks.Runtime[Config, State], physicalCore int) apphooks.Status {
	return apphooks.StatusOK
}
