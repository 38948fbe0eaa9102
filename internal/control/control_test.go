package control_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soconnect-project/soconnect/internal/control"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/stretchr/testify/require"
)

type cfg struct{}
type appState struct{}

type fakeControlHooks struct {
	enters  atomic.Int64
	inflies atomic.Int64
	exits   atomic.Int64
}

func (f *fakeControlHooks) ControlEnter(rt *apphooks.Runtime[cfg, appState], physicalCore int) apphooks.Status {
	f.enters.Add(1)
	return apphooks.StatusOK
}

func (f *fakeControlHooks) ControlInfly(rt *apphooks.Runtime[cfg, appState], physicalCore int) apphooks.Status {
	f.inflies.Add(1)
	return apphooks.StatusOK
}

func (f *fakeControlHooks) ControlExit(rt *apphooks.Runtime[cfg, appState], physicalCore int) apphooks.Status {
	f.exits.Add(1)
	return apphooks.StatusOK
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestEngine_DispatchesControlInflyOnSchedule(t *testing.T) {
	hooks := &fakeControlHooks{}
	rt := &apphooks.Runtime[cfg, appState]{Quit: new(atomic.Bool)}

	e := &control.Engine[cfg, appState]{
		PhysicalCore: 0,
		Workers:      []control.WorkerSchedule{{LogicalCore: 0, PhysicalCore: 1, IntervalNS: int64(5 * time.Millisecond)}},
		TickInterval: time.Millisecond,
		Hooks:        hooks,
		Runtime:      rt,
		WallClock:    &control.WallClock{},
		Logger:       discardLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	err := e.Run(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), hooks.enters.Load())
	require.Equal(t, int64(1), hooks.exits.Load())
	require.GreaterOrEqual(t, hooks.inflies.Load(), int64(3), "a 40ms run on a 5ms interval should dispatch several times")
	require.NotEmpty(t, e.WallClock.String())
}

func TestEngine_StopsOnGlobalQuitFlag(t *testing.T) {
	hooks := &fakeControlHooks{}
	rt := &apphooks.Runtime[cfg, appState]{Quit: new(atomic.Bool)}

	e := &control.Engine[cfg, appState]{
		PhysicalCore: 0,
		TickInterval: time.Millisecond,
		Hooks:        hooks,
		Runtime:      rt,
		WallClock:    &control.WallClock{},
		Logger:       discardLogger(),
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		rt.Quit.Store(true)
	}()

	err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), hooks.exits.Load())
}

func TestEngine_TestDurationEnforcesQuit(t *testing.T) {
	hooks := &fakeControlHooks{}
	rt := &apphooks.Runtime[cfg, appState]{
		Quit:                new(atomic.Bool),
		TestDurationEnabled: true,
		TestDuration:        10 * time.Millisecond,
	}

	e := &control.Engine[cfg, appState]{
		PhysicalCore: 0,
		TickInterval: time.Millisecond,
		Hooks:        hooks,
		Runtime:      rt,
		WallClock:    &control.WallClock{},
		Logger:       discardLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := e.Run(ctx)

	require.NoError(t, err, "the duration check, not context cancellation, should have set quit")
	require.True(t, rt.Quit.Load())
}

func TestWallClock_ConcurrentAccess(t *testing.T) {
	var wc control.WallClock
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			wc.Set("tick")
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_ = wc.String()
	}
	<-done
}
