// soconnectd is the SoConnect packet-processing daemon: it loads a
// configuration file, brings up a simulated NIC topology, and runs one
// application module's workers and control plane until signalled to
// stop.
//
// Each application module (echoserver, echoclient, cmsketch) has its
// own Config/State pair, and apphooks.Runtime/WorkerHooks/ControlHooks
// are generic over that pair -- a single build of this binary can run
// any one of them, selected at startup by --app, but the framework
// plumbing for the selected app is instantiated once per process, the
// same way the teacher's single binary selects its behavior from
// --config rather than compiling one binary per BFD peer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/soconnect-project/soconnect/internal/apps/cmsketch"
	"github.com/soconnect-project/soconnect/internal/apps/echoclient"
	"github.com/soconnect-project/soconnect/internal/apps/echoserver"
	"github.com/soconnect-project/soconnect/internal/config"
	"github.com/soconnect-project/soconnect/internal/control"
	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/internal/portinit"
	appversion "github.com/soconnect-project/soconnect/internal/version"
	"github.com/soconnect-project/soconnect/internal/worker"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

// shutdownTimeout bounds how long the metrics HTTP server gets to drain
// on graceful shutdown.
const shutdownTimeout = 10 * time.Second

// controlTickInterval is how often the control-plane engine wakes to
// check whether any worker's dispatch interval has elapsed.
const controlTickInterval = 100 * time.Millisecond

// controlWorkerIntervalNS is the per-worker ControlInfly dispatch
// interval; the configuration file has no key for this; spec §4.6
// leaves the schedule to the implementation.
const controlWorkerIntervalNS = int64(time.Second)

// defaultRingCapacity bounds the diagnostic ring the demo echoclient
// flag set allocates per worker.
const defaultRingCapacity = 1 << 16

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "soconnect.conf", "path to configuration file")
	appName := flag.String("app", "echoserver", "application module to run: echoserver, echoclient, or cmsketch")
	driverName := flag.String("driver", "sim", "packet I/O backend (only \"sim\" is implemented; see DESIGN.md)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve Prometheus metrics on")
	targetPort := flag.Int("target-port", 0, "echoclient: logical port to send bursts on")
	burstSize := flag.Int("burst-size", 32, "echoclient: packets per paced burst")
	packetRate := flag.Int("packet-rate", 100_000, "echoclient: aggregate packets/sec across sender workers")
	totalToSend := flag.Int("total-to-send", 1_000_000, "echoclient: packets each sender worker sends before exiting")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("soconnectd starting",
		slog.String("version", appversion.Version),
		slog.String("app", *appName),
		slog.String("driver", *driverName),
	)

	if *driverName != "sim" {
		logger.Error("soconnectd: unsupported --driver (only \"sim\" is wired; see DESIGN.md)", slog.String("driver", *driverName))
		return 1
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *appName {
	case "echoserver":
		err = runEchoServer(ctx, *configPath, logger, reg, collector, *metricsAddr)
	case "echoclient":
		err = runEchoClient(ctx, *configPath, logger, reg, collector, *metricsAddr, echoclient.Config{
			Port:          *targetPort,
			BurstSize:     *burstSize,
			PacketRate:    *packetRate,
			NbSenderCores: 1,
			TotalToSend:   *totalToSend,
			RingCapacity:  defaultRingCapacity,
		})
	case "cmsketch":
		err = runCmSketch(ctx, *configPath, logger, reg, collector, *metricsAddr)
	default:
		logger.Error("soconnectd: unrecognized --app", slog.String("app", *appName))
		return 1
	}
	if err != nil {
		logger.Error("soconnectd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("soconnectd stopped")
	return 0
}

// runEchoServer loads cfgPath and runs echoserver's workers in the
// server role until ctx is cancelled.
func runEchoServer(ctx context.Context, cfgPath string, logger *slog.Logger, reg *prometheus.Registry, collector *metrics.Collector, metricsAddr string) error {
	hooks := echoserver.New(nil, logger, defaultRingCapacity)
	hooks.Metrics = collector

	rt, drv, views, _, status := bootstrap[echoserver.Config, echoserver.State](cfgPath, hooks, nil)
	if !status.OK() {
		return fmt.Errorf("bring up echoserver: %s", status)
	}
	hooks.Driver = drv

	return runDaemon(ctx, logger, reg, metricsAddr, rt, drv, views, worker.RoleServer, hooks, hooks, hooks)
}

// runCmSketch loads cfgPath and runs cmsketch's workers in the server
// role until ctx is cancelled. cmsketch never forwards, so its workers
// share the same driver/port bring-up path as echoserver's but never
// transmit.
func runCmSketch(ctx context.Context, cfgPath string, logger *slog.Logger, reg *prometheus.Registry, collector *metrics.Collector, metricsAddr string) error {
	hooks := cmsketch.New(logger)
	hooks.Metrics = collector

	rt, drv, views, _, status := bootstrap[cmsketch.Config, cmsketch.State](cfgPath, hooks, nil)
	if !status.OK() {
		return fmt.Errorf("bring up cmsketch: %s", status)
	}

	return runDaemon(ctx, logger, reg, metricsAddr, rt, drv, views, worker.RoleServer, hooks, hooks, hooks)
}

// runEchoClient loads cfgPath and runs echoclient's workers in the
// client role until ctx is cancelled or every sender has finished.
//
// echoclient needs a peer to reflect its bursts; this binary has no
// second host to dial, so when the configuration names at least two
// ports it pairs port 0 with port 1 over a reciprocal SimDriver link
// and runs an unpinned echoserver companion goroutine on port 1 to
// stand in for that peer -- a demo-mode convenience, not a production
// deployment topology (see DESIGN.md). With only one port configured
// it falls back to a self-loop: the client receives its own bursts
// back immediately, unstamped by any server.
func runEchoClient(ctx context.Context, cfgPath string, logger *slog.Logger, reg *prometheus.Registry, collector *metrics.Collector, metricsAddr string, clientCfg echoclient.Config) error {
	hooks := echoclient.New(nil, nil, logger, clientCfg)
	hooks.Metrics = collector

	rt, drv, views, pool, status := bootstrap[echoclient.Config, echoclient.State](cfgPath, hooks, nil)
	if !status.OK() {
		return fmt.Errorf("bring up echoclient: %s", status)
	}
	hooks.Driver = drv
	hooks.Pool = pool

	sim, _ := drv.(*driver.SimDriver)
	g, gctx := errgroup.WithContext(ctx)

	if sim != nil && len(views) >= 2 {
		sim.Link[views[0].PhysicalID] = views[1].PhysicalID
		sim.Link[views[1].PhysicalID] = views[0].PhysicalID
		logger.Info("echoclient: running embedded echoserver companion on port 1 (demo mode)")
		companion := echoserver.New(sim, logger.With(slog.String("component", "echoserver-companion")), defaultRingCapacity)
		companionRT := &apphooks.Runtime[echoserver.Config, echoserver.State]{
			PerCoreState: make([]echoserver.State, 1),
			Ports:        rt.Ports,
			Quit:         rt.Quit,
		}
		if status := companion.ProcessEnter(companionRT, 0); !status.OK() {
			return fmt.Errorf("start echoserver companion: %s", status)
		}
		g.Go(func() error {
			return runEchoServerCompanion(gctx, companion, companionRT, views[1])
		})
	} else {
		logger.Warn("echoclient: fewer than 2 ports configured, self-looping (no server stamping will occur)")
	}

	err := runDaemonGroup(g, gctx, logger, reg, metricsAddr, rt, drv, views, worker.RoleClient, hooks, hooks, hooks)
	if err != nil {
		return err
	}

	var sent, received uint64
	for _, st := range rt.PerCoreState {
		sent += st.Sent
		received += st.Received
	}
	logger.Info("echoclient finished", slog.Uint64("sent", sent), slog.Uint64("received", received))
	return nil
}

// runEchoServerCompanion polls port.PhysicalID's queue 0 with
// echoserver's hooks until ctx is cancelled, mirroring worker.Engine's
// runServer loop without pinning a dedicated core to it.
func runEchoServerCompanion(ctx context.Context, hooks *echoserver.Hooks, rt *apphooks.Runtime[echoserver.Config, echoserver.State], port portinit.PortView) error {
	burst := make([]*mbuf.Mbuf, worker.MaxRxBurst)
	for ctx.Err() == nil && !rt.Quit.Load() {
		n := hooks.Driver.RxBurst(port.PhysicalID, 0, burst, worker.MaxRxBurst)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if status := hooks.ProcessPkt(burst[:n], rt, 0, port.LogicalID); !status.OK() {
			return fmt.Errorf("echoserver companion process_pkt: %s", status)
		}
	}
	hooks.ProcessExit(rt, 0)
	return nil
}

// bootstrap loads cfgPath, brings up a SimDriver topology sized from
// the parsed port list, and fills in every Runtime field the config
// loader and port initializer own. link overrides the default
// self-loop topology (port i talks to itself); pass nil to keep the
// default.
func bootstrap[Cfg, State any](cfgPath string, hooks apphooks.AppConfig[Cfg, State], link map[int]int) (*apphooks.Runtime[Cfg, State], driver.Driver, []portinit.PortView, *mbufpool.Pool, apphooks.Status) {
	rt := &apphooks.Runtime[Cfg, State]{Quit: new(atomic.Bool)}

	fileCfg, status := config.Load(cfgPath, hooks, rt)
	if !status.OK() {
		return nil, nil, nil, nil, status
	}

	if link == nil {
		link = make(map[int]int, len(fileCfg.PortMAC))
		for i := range fileCfg.PortMAC {
			link[i] = i
		}
	}
	drv := driver.NewSimDriver(link)

	descriptors := make([]portinit.PortDescriptor, len(fileCfg.PortMAC))
	for i, mac := range fileCfg.PortMAC {
		descriptors[i] = portinit.PortDescriptor{
			PhysicalID:   i,
			LogicalID:    i,
			MAC:          mac,
			RxQueueDepth: fileCfg.RxQueueLen,
			TxQueueDepth: fileCfg.TxQueueLen,
		}
	}

	views, pool, status := portinit.Init(drv, portinit.Config{
		Ports:            descriptors,
		NbRXRingsPerPort: fileCfg.NbRXRingsPerPort,
		NbTXRingsPerPort: fileCfg.NbTXRingsPerPort,
		RSS: portinit.RSSConfig{
			Enabled:   fileCfg.EnableRSS,
			Symmetric: fileCfg.RSSSymmetric,
			HashField: fileCfg.RSSHashField,
		},
		EnablePromiscuous: fileCfg.EnablePromiscuous,
		EnableOffload:     fileCfg.EnableOffload,
		NbCores:           len(fileCfg.UsedCoreIDs),
	})
	if !status.OK() {
		return nil, nil, nil, nil, status
	}

	rt.Cores = fileCfg.UsedCoreIDs
	rt.ControlCoreID = fileCfg.ControlCoreID
	rt.TestDurationEnabled = fileCfg.EnableTestDurationLimit
	rt.TestDuration = fileCfg.TestDuration
	rt.PerCoreState = make([]State, len(rt.Cores))

	rt.Ports = make([]apphooks.PortView, len(views))
	for i, v := range views {
		rt.Ports[i] = apphooks.PortView{
			PhysicalID: v.PhysicalID,
			LogicalID:  v.LogicalID,
			MAC:        v.MAC,
			NbRXQueues: v.NbRXQueues,
			NbTXQueues: v.NbTXQueues,
		}
	}

	return rt, drv, views, pool, apphooks.StatusOK
}

// runDaemon is runDaemonGroup for callers that have no extra goroutines
// of their own to fold into the errgroup.
func runDaemon[Cfg, State any](
	ctx context.Context,
	logger *slog.Logger,
	reg *prometheus.Registry,
	metricsAddr string,
	rt *apphooks.Runtime[Cfg, State],
	drv driver.Driver,
	views []portinit.PortView,
	role worker.Role,
	workerHooks apphooks.WorkerHooks[Cfg, State],
	controlHooks apphooks.ControlHooks[Cfg, State],
	appConfig apphooks.AppConfig[Cfg, State],
) error {
	g, gctx := errgroup.WithContext(ctx)
	return runDaemonGroup(g, gctx, logger, reg, metricsAddr, rt, drv, views, role, workerHooks, controlHooks, appConfig)
}

// runDaemonGroup builds one worker.Engine per configured core plus a
// control.Engine, starts the metrics HTTP server, and runs all of it
// under g until ctx is cancelled, then calls appConfig.WorkerAllExit.
// Callers that registered their own goroutines on g before calling this
// pass the same g/gctx pair so everything shuts down together.
func runDaemonGroup[Cfg, State any](
	g *errgroup.Group,
	gctx context.Context,
	logger *slog.Logger,
	reg *prometheus.Registry,
	metricsAddr string,
	rt *apphooks.Runtime[Cfg, State],
	drv driver.Driver,
	views []portinit.PortView,
	role worker.Role,
	workerHooks apphooks.WorkerHooks[Cfg, State],
	controlHooks apphooks.ControlHooks[Cfg, State],
	appConfig apphooks.AppConfig[Cfg, State],
) error {
	engines := make([]*worker.Engine[Cfg, State], len(rt.Cores))
	for i, pc := range rt.Cores {
		engines[i] = &worker.Engine[Cfg, State]{
			LogicalCore:  i,
			PhysicalCore: pc,
			Role:         role,
			Queue:        i,
			ServerPorts:  views,
			Driver:       drv,
			Hooks:        workerHooks,
			Runtime:      rt,
			Logger:       logger,
		}
	}

	schedule := make([]control.WorkerSchedule, len(rt.Cores))
	for i, pc := range rt.Cores {
		schedule[i] = control.WorkerSchedule{LogicalCore: i, PhysicalCore: pc, IntervalNS: controlWorkerIntervalNS}
	}
	ctlEngine := &control.Engine[Cfg, State]{
		PhysicalCore: rt.ControlCoreID,
		Workers:      schedule,
		TickInterval: controlTickInterval,
		Hooks:        controlHooks,
		Runtime:      rt,
		WallClock:    new(control.WallClock),
		Logger:       logger,
	}

	metricsSrv := newMetricsServer(metricsAddr, reg)

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", metricsAddr))
		return listenAndServe(gctx, metricsSrv)
	})

	for _, e := range engines {
		e := e
		g.Go(func() error {
			e.Run()
			return nil
		})
	}
	g.Go(func() error {
		return ctlEngine.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		rt.Quit.Store(true)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if status := appConfig.WorkerAllExit(rt); !status.OK() && status != apphooks.StatusNotImplemented {
		logger.Warn("worker_all_exit reported failure", slog.String("status", status.String()))
	}

	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newMetricsServer creates an HTTP server for the Prometheus metrics
// endpoint.
func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// listenAndServe binds srv.Addr under ctx and serves until the listener
// is closed, treating http.ErrServerClosed as a clean stop.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", srv.Addr, err)
	}
	return nil
}
