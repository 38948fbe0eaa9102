package apphooks

import (
	"sync/atomic"
	"time"

	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// PortView is the read-only view of one initialized port that hooks may
// consult -- physical/logical identity and queue counts, without the
// pool handles or driver reference that stay internal to the runtime
// (spec §4.4's PortView, trimmed to what crosses the hook boundary).
type PortView struct {
	PhysicalID int
	LogicalID  int
	MAC        MAC
	NbRXQueues int
	NbTXQueues int
}

// Runtime is the generic form of RuntimeConfig (spec §3): process-wide
// state constructed once at startup and read-only during the worker
// loop, save for the fields explicitly called out below. Cfg is the
// application's own configuration type; State is its per-core state
// type, held one-per-logical-core in the PerCoreState slice.
//
// Runtime lives in this package, alongside the hook interfaces that
// take it as a parameter, specifically to avoid a cycle between a
// separate "runtime config" package and this one.
type Runtime[Cfg, State any] struct {
	// Config is the application's own parsed configuration, populated by
	// the framework's init_app/parse_app_kv_pair sequence (spec §6).
	Config Cfg

	// PerCoreState holds one State value per logical core, indexed the
	// same way as Cores.
	PerCoreState []State

	// Cores lists the physical core ids running worker engines, in
	// logical-core order (Cores[i] is logical core i's physical core).
	Cores []int

	// ControlCoreID is the physical core id running the control-plane
	// engine, distinct from every entry in Cores.
	ControlCoreID int

	// Ports lists every initialized port, in logical-port order.
	Ports []PortView

	// TestDurationEnabled and TestDuration implement the test-duration
	// limit the control-plane engine enforces (spec §4.6).
	TestDurationEnabled bool
	TestDuration        time.Duration

	// Quit is the single global cooperative-shutdown flag (spec §3/§5):
	// set by a signal handler, the control-plane duration check, or a
	// worker's process_enter failure; observed by every worker loop and
	// by the control-plane loop.
	Quit *atomic.Bool
}

// WorkerHooks is the per-packet contract an application module
// implements to act as a worker (spec §4.5). A hook that the module
// does not need should return StatusNotImplemented, which the
// framework treats as "skip, continue" -- except ProcessEnter, whose
// failure is fatal to the whole process.
type WorkerHooks[Cfg, State any] interface {
	// ProcessEnter is called once, at Init->Entered, before the worker's
	// first fast-path iteration. A non-OK return sets the global quit
	// flag and moves the worker straight to Exited; ProcessExit is not
	// called for that worker.
	ProcessEnter(rt *Runtime[Cfg, State], logicalCore int) Status

	// ProcessPkt is called once per nonempty receive burst, in the
	// server role: pkts holds up to MAX_RX_BURST buffers received on
	// queue from recvPort. The hook owns pkts and must free or forward
	// every buffer.
	ProcessPkt(pkts []*mbuf.Mbuf, rt *Runtime[Cfg, State], queue, recvPort int) Status

	// ProcessPktDrop is called, in either role, with the remainder left
	// over once a transmit burst exhausts its retries. The hook owns pkts and must
	// free every buffer; it is the place an application corrects
	// whatever optimistic forward-count bookkeeping ProcessPkt already
	// did.
	ProcessPktDrop(pkts []*mbuf.Mbuf, rt *Runtime[Cfg, State]) Status

	// ProcessClient is called once per fast-path iteration in the
	// client role. The hook performs its own rate pacing and frees any
	// buffers it does not send; it sets *readyToExit to leave the loop.
	ProcessClient(rt *Runtime[Cfg, State], queue int, readyToExit *bool) Status

	// ProcessExit is called once, at Running->Exited, after the worker's
	// fast-path loop ends. It is not called when ProcessEnter failed.
	ProcessExit(rt *Runtime[Cfg, State], logicalCore int) Status
}

// ControlHooks is the periodic-statistics contract an application
// module implements for the control-plane engine (spec §4.6). Neither
// ControlEnter nor ControlExit may set the quit flag; only the
// duration check and external signal handlers do.
type ControlHooks[Cfg, State any] interface {
	// ControlEnter is called once per worker, on control-plane startup.
	ControlEnter(rt *Runtime[Cfg, State], physicalCore int) Status

	// ControlInfly is called for a worker whenever its configured
	// interval has elapsed since the previous invocation.
	ControlInfly(rt *Runtime[Cfg, State], physicalCore int) Status

	// ControlExit is called once per worker, on shutdown.
	ControlExit(rt *Runtime[Cfg, State], physicalCore int) Status
}

// AppConfig is the application-supplied configuration contract (spec
// §6): the framework opens the named file, calls ParseKVPair once per
// recognized line, then InitInternal once parsing completes.
type AppConfig[Cfg, State any] interface {
	// ParseKVPair handles one "key = value" line the framework's own
	// parser did not recognize. Unrecognized keys should return
	// StatusInvalidValue so the framework can report the offending key.
	ParseKVPair(key, value string, rt *Runtime[Cfg, State]) Status

	// InitInternal is called once, after every configuration line has
	// been parsed, to let the module finish building derived state.
	InitInternal(rt *Runtime[Cfg, State]) Status

	// WorkerAllExit is called once, after every worker has reached
	// Exited, to let the module aggregate final results (e.g. tail
	// latency over all per-worker rings).
	WorkerAllExit(rt *Runtime[Cfg, State]) Status
}
