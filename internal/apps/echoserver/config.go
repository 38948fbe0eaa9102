package echoserver

import "github.com/soconnect-project/soconnect/pkg/apphooks"

// ParseKVPair rejects every key: echoserver defines no application
// configuration keys of its own, so any key forwarded here by
// internal/config is a misconfiguration.
func (h *Hooks) ParseKVPair(key, value string, rt *apphooks.Runtime[Config, State]) apphooks.Status {
	h.Logger.Error("echoserver: unrecognized configuration key", "key", key, "value", value)
	return apphooks.StatusInvalidValue
}

// InitInternal performs no additional setup.
func (h *Hooks) InitInternal(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	return apphooks.StatusOK
}

// WorkerAllExit is a no-op; per-worker diagnostic rings are read
// directly from rt.PerCoreState by the caller after all workers exit.
func (h *Hooks) WorkerAllExit(rt *apphooks.Runtime[Config, State]) apphooks.Status {
	return apphooks.StatusOK
}
