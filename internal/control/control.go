// Package control implements the control-plane engine (spec §4.6): a
// single supervisory loop, pinned to its own core, that periodically
// invokes each worker's ControlInfly hook, refreshes a shared
// wall-clock string, and enforces the optional test-duration limit.
//
// Grounded on the teacher's daemon shutdown plumbing in
// cmd/gobfd/main.go: an errgroup-driven loop observing a
// signal.NotifyContext, generalized from "drain BFD sessions on
// SIGTERM" to "tick every worker's control hook on schedule".
package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soconnect-project/soconnect/internal/corepin"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
)

// WallClock is a human-readable timestamp string refreshed once per
// control-plane tick and read by anything reporting status (spec
// §4.6 step 1: "guarded by its mutex").
type WallClock struct {
	mu sync.RWMutex
	s  string
}

// Set replaces the wall-clock string.
func (w *WallClock) Set(s string) {
	w.mu.Lock()
	w.s = s
	w.mu.Unlock()
}

// String returns the current wall-clock string.
func (w *WallClock) String() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.s
}

// WorkerSchedule names one worker's control-plane dispatch interval,
// indexed by logical core.
type WorkerSchedule struct {
	LogicalCore  int
	PhysicalCore int
	IntervalNS   int64
}

// Engine drives the control-plane loop on its own pinned goroutine.
type Engine[Cfg, AppState any] struct {
	PhysicalCore int
	Workers      []WorkerSchedule
	TickInterval time.Duration

	Hooks     apphooks.ControlHooks[Cfg, AppState]
	Runtime   *apphooks.Runtime[Cfg, AppState]
	WallClock *WallClock
	Logger    *slog.Logger

	lastInvocationNS []int64
	testStartNS      int64
	testStarted      bool
}

// Run pins the calling goroutine to Engine.PhysicalCore, calls
// ControlEnter for every worker, then ticks every TickInterval until
// ctx is cancelled or the global quit flag is observed, calling
// ControlExit for every worker before returning. It returns ctx.Err()
// when cancellation ended the loop, or nil when the quit flag did.
func (e *Engine[Cfg, AppState]) Run(ctx context.Context) error {
	log := e.Logger.With(slog.Int("physical_core", e.PhysicalCore))

	if err := corepin.Pin(e.PhysicalCore); err != nil {
		log.Error("control: core pin failed, aborting", slog.String("error", err.Error()))
		return err
	}
	defer corepin.Unpin()

	e.lastInvocationNS = make([]int64, len(e.Workers))
	for _, w := range e.Workers {
		if status := e.Hooks.ControlEnter(e.Runtime, w.PhysicalCore); !status.OK() && status != apphooks.StatusNotImplemented {
			log.Warn("control: control_enter reported failure",
				slog.Int("worker_physical_core", w.PhysicalCore), slog.String("status", status.String()))
		}
	}

	ticker := time.NewTicker(e.TickInterval)
	defer ticker.Stop()

	var runErr error
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		case <-ticker.C:
		}
		if runErr != nil || e.Runtime.Quit.Load() {
			break
		}
		e.tick(log)
	}

	for _, w := range e.Workers {
		if status := e.Hooks.ControlExit(e.Runtime, w.PhysicalCore); !status.OK() && status != apphooks.StatusNotImplemented {
			log.Warn("control: control_exit reported failure",
				slog.Int("worker_physical_core", w.PhysicalCore), slog.String("status", status.String()))
		}
	}
	return runErr
}

func (e *Engine[Cfg, AppState]) tick(log *slog.Logger) {
	e.WallClock.Set(time.Now().Format(time.RFC3339))

	nowNS := time.Now().UnixNano()
	for i, w := range e.Workers {
		if nowNS-e.lastInvocationNS[i] < w.IntervalNS {
			continue
		}
		sampledNS := time.Now().UnixNano()
		if status := e.Hooks.ControlInfly(e.Runtime, w.PhysicalCore); !status.OK() && status != apphooks.StatusNotImplemented {
			log.Warn("control: control_infly reported failure",
				slog.Int("worker_physical_core", w.PhysicalCore), slog.String("status", status.String()))
		}
		e.lastInvocationNS[i] = sampledNS
	}

	if !e.Runtime.TestDurationEnabled {
		return
	}
	if !e.testStarted {
		e.testStartNS = nowNS
		e.testStarted = true
		return
	}
	if nowNS-e.testStartNS >= e.Runtime.TestDuration.Nanoseconds() {
		e.Runtime.Quit.Store(true)
	}
}
