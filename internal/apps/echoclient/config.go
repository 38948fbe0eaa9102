package echoclient

import "github.com/soconnect-project/soconnect/pkg/apphooks"

// ParseKVPair rejects every key: echoclient's parameters (target port,
// burst size, rate, total packets) are supplied programmatically via
// Config, not through the line-oriented configuration file.
func (h *Hooks) ParseKVPair(key, value string, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	h.Logger.Error("echoclient: unrecognized configuration key", "key", key, "value", value)
	return apphooks.StatusInvalidValue
}

// InitInternal performs no additional setup.
func (h *Hooks) InitInternal(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	return apphooks.StatusOK
}

// WorkerAllExit is a no-op; per-worker results are read directly from
// rt.PerCoreState by the caller after all workers exit.
func (h *Hooks) WorkerAllExit(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	return apphooks.StatusOK
}
