package echoclient_test

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/soconnect-project/soconnect/internal/apps/echoclient"
	"github.com/soconnect-project/soconnect/internal/apps/echoserver"
	"github.com/soconnect-project/soconnect/internal/driver"
	"github.com/soconnect-project/soconnect/internal/mbufpool"
	"github.com/soconnect-project/soconnect/internal/metrics"
	"github.com/soconnect-project/soconnect/internal/worker"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
	"github.com/soconnect-project/soconnect/pkg/mbuf"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	g, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

// TestControlInfly_ReportsCountersAndTailLatency drives one client/server
// round trip, then calls ControlInfly and checks that Tx/Rx deltas, the
// RSS queue-selection counter, and the tail-latency gauges all reflect it.
func TestControlInfly_ReportsCountersAndTailLatency(t *testing.T) {
	const clientPort = 0
	const serverPort = 1
	const queue = 0
	const total = 64

	sim := driver.NewSimDriver(map[int]int{clientPort: serverPort, serverPort: clientPort})
	pool := mbufpool.New("tx_client", total+16, mbuf.DefaultDataRoom)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client := echoclient.New(sim, pool, testLogger(), echoclient.Config{
		Port:          clientPort,
		BurstSize:     total,
		PacketRate:    total * 1_000_000,
		NbSenderCores: 1,
		TotalToSend:   total,
		RingCapacity:  total,
	})
	client.Metrics = collector
	clientRT := &apphooks.Runtime[echoclient.Config, echoclient.State]{
		PerCoreState: make([]echoclient.State, 1),
		Cores:        []int{0},
		Ports: []apphooks.PortView{
			{PhysicalID: clientPort, LogicalID: clientPort},
			{PhysicalID: serverPort, LogicalID: serverPort},
		},
		Quit: new(atomic.Bool),
	}
	require.True(t, client.ProcessEnter(clientRT, 0).OK())

	server := echoserver.New(sim, testLogger(), total)
	serverRT := &apphooks.Runtime[echoserver.Config, echoserver.State]{
		PerCoreState: make([]echoserver.State, 1),
		Ports: []apphooks.PortView{
			{PhysicalID: clientPort, LogicalID: clientPort},
			{PhysicalID: serverPort, LogicalID: serverPort},
		},
		Quit: new(atomic.Bool),
	}
	require.True(t, server.ProcessEnter(serverRT, 0).OK())

	var readyToExit bool
	require.True(t, client.ProcessClient(clientRT, queue, &readyToExit).OK())

	burst := make([]*mbuf.Mbuf, worker.MaxRxBurst)
	for {
		n := sim.RxBurst(serverPort, queue, burst, worker.MaxRxBurst)
		if n == 0 {
			break
		}
		require.True(t, server.ProcessPkt(burst[:n], serverRT, queue, serverPort).OK())
	}
	require.True(t, client.ProcessClient(clientRT, queue, &readyToExit).OK())
	require.True(t, readyToExit)

	require.True(t, client.ControlInfly(clientRT, 0).OK())

	require.Equal(t, float64(total), counterValue(t, collector.TxPackets, "0", "0"))
	require.Equal(t, float64(total), counterValue(t, collector.RxPackets, "0", "0"))
	require.Equal(t, float64(total), counterValue(t, collector.RSSQueueSelected, "0", "0"))
	require.Equal(t, float64(1), counterValue(t, collector.WorkerIntervals, "0"))

	for _, percent := range []string{"0.1", "0.5", "0.8", "0.99"} {
		require.Positive(t, gaugeValue(t, collector.TailLatencyMicros, percent))
	}
}
