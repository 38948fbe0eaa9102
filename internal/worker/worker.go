// Package worker implements the worker engine (spec §4.5): the
// Init->Entered->Running->Exited state machine that drives one pinned
// core through the server or client fast-path role, dispatching to the
// application's WorkerHooks.
//
// Grounded on the teacher's per-session run loop (internal/bfd.Session,
// one pinned goroutine driving a state machine and a tight send/receive
// loop under a context and a logger), generalized from one BFD session
// to one NIC queue.
package worker

import (
	"log/slog"

	"github.com/soconnect-project/soconnect/internal/corepin"
	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/internal/portinit"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// MaxRxBurst bounds one receive call's batch size (spec §4.5).
const MaxRxBurst = 32

// BurstTxRetries bounds how many times TransmitBurst retries a
// partially-accepted send before giving up on the remainder (spec
// §4.5's "bounded retry, not a blocking send").
const BurstTxRetries = 16

// Role selects which fast-path loop body an Engine runs.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// State is the worker's position in the Init->Entered->Running->Exited
// state machine.
type State int

const (
	StateInit State = iota
	StateEntered
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateEntered:
		return "entered"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Engine drives one logical core through its role's fast path. A new
// Engine is built once per worker at startup and Run is called on its
// own pinned goroutine.
type Engine[Cfg, AppState any] struct {
	LogicalCore  int
	PhysicalCore int
	Role         Role
	Queue        int

	// ServerPorts lists the ports this worker polls, in the server
	// role; unused in the client role.
	ServerPorts []portinit.PortView

	Driver  driver.Driver
	Hooks   apphooks.WorkerHooks[Cfg, AppState]
	Runtime *apphooks.Runtime[Cfg, AppState]
	Logger  *slog.Logger

	state State
}

// State reports the engine's current position in the state machine.
// Safe to call only from the engine's own goroutine, same as Run.
func (e *Engine[Cfg, AppState]) State() State { return e.state }

// Run pins the calling goroutine to PhysicalCore and drives the
// Init->Entered->Running->Exited state machine to completion. It
// returns once the worker has exited: because core pinning failed,
// because ProcessEnter failed, because the global quit flag was
// observed, or, in the client role, because ProcessClient set
// readyToExit.
func (e *Engine[Cfg, AppState]) Run() {
	log := e.Logger.With(
		slog.Int("logical_core", e.LogicalCore),
		slog.Int("physical_core", e.PhysicalCore),
	)

	if err := corepin.Pin(e.PhysicalCore); err != nil {
		log.Error("worker: core pin failed, aborting", slog.String("error", err.Error()))
		e.Runtime.Quit.Store(true)
		e.state = StateExited
		return
	}
	defer corepin.Unpin()

	e.state = StateEntered
	if status := e.Hooks.ProcessEnter(e.Runtime, e.LogicalCore); !status.OK() {
		log.Error("worker: process_enter failed, aborting process", slog.String("status", status.String()))
		e.Runtime.Quit.Store(true)
		e.state = StateExited
		return
	}

	e.state = StateRunning
	switch e.Role {
	case RoleServer:
		e.runServer(log)
	case RoleClient:
		e.runClient(log)
	}

	e.state = StateExited
	if status := e.Hooks.ProcessExit(e.Runtime, e.LogicalCore); !status.OK() {
		log.Warn("worker: process_exit reported failure", slog.String("status", status.String()))
	}
}

func (e *Engine[Cfg, AppState]) runServer(log *slog.Logger) {
	burst := make([]*mbuf.Mbuf, MaxRxBurst)
	for !e.Runtime.Quit.Load() {
		for _, port := range e.ServerPorts {
			n := e.Driver.RxBurst(port.PhysicalID, e.Queue, burst, MaxRxBurst)
			if n == 0 {
				continue
			}
			if status := e.Hooks.ProcessPkt(burst[:n], e.Runtime, e.Queue, port.LogicalID); !status.OK() && status != apphooks.StatusNotImplemented {
				log.Warn("worker: process_pkt reported failure",
					slog.Int("port", port.LogicalID), slog.String("status", status.String()))
			}
		}
	}
}

func (e *Engine[Cfg, AppState]) runClient(log *slog.Logger) {
	readyToExit := false
	for !readyToExit && !e.Runtime.Quit.Load() {
		if status := e.Hooks.ProcessClient(e.Runtime, e.Queue, &readyToExit); !status.OK() && status != apphooks.StatusNotImplemented {
			log.Warn("worker: process_client reported failure", slog.String("status", status.String()))
		}
	}
}

// TransmitBurst sends every buffer in bufs on port/queue, retrying the
// portion the driver did not accept up to BurstTxRetries times (spec
// §4.5). Hooks in either role call this instead of calling d.TxBurst
// directly, so the retry policy lives in one place. Once retries are
// exhausted, the unsent remainder is handed to hooks.ProcessPktDrop,
// which owns freeing it (spec §6's process_pkt_drop); TransmitBurst
// frees the remainder itself only if that hook is not implemented. m
// is optional; when non-nil, each retry and any final drop is
// reported to it.
func TransmitBurst[Cfg, State any](d driver.Driver, port, queue int, bufs []*mbuf.Mbuf, rt *apphooks.Runtime[Cfg, State], hooks apphooks.WorkerHooks[Cfg, State], m *metrics.Collector) apphooks.Status {
	remaining := bufs
	for retries := 0; len(remaining) > 0; retries++ {
		sent := d.TxBurst(port, queue, remaining, len(remaining))
		remaining = remaining[sent:]
		if len(remaining) == 0 || retries == BurstTxRetries {
			break
		}
		if m != nil {
			m.IncTxRetries(port, queue)
		}
	}
	if len(remaining) == 0 {
		return apphooks.StatusOK
	}
	if m != nil {
		m.IncTxDropped(port, queue, len(remaining))
	}
	if status := hooks.ProcessPktDrop(remaining, rt); status == apphooks.StatusNotImplemented {
		for _, b := range remaining {
			b.Free()
		}
	}
	return apphooks.StatusMemory
}
