package commands

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/soconnect-project/soconnect/internal/metrics"
)

func newTestServer(t *testing.T) (*metrics.Collector, string) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)
	return collector, srv.Listener.Addr().String()
}

func TestScrapeMetrics_CollectsCounterSeries(t *testing.T) {
	collector, addr := newTestServer(t)
	collector.IncRxPackets(0, 0, 7)
	collector.IncRxPackets(0, 1, 3)
	collector.IncTxPackets(0, 0, 5)
	collector.IncWorkerIntervals(0)
	collector.ActiveWorkers.Set(2)

	families, err := scrapeMetrics(addr)
	require.NoError(t, err)

	require.Equal(t, float64(10), counterSum(families[familyRxPackets]))
	require.Equal(t, float64(5), counterSum(families[familyTxPackets]))
	require.Equal(t, float64(1), counterSum(families[familyWorkerIntervals]))
	require.Equal(t, float64(2), gaugeSum(families[familyActiveWorkers]))
}

func TestScrapeMetrics_UnreachableAddrFails(t *testing.T) {
	_, err := scrapeMetrics("127.0.0.1:1")
	require.Error(t, err)
}

func TestGaugesByLabel_KeysByLabelValue(t *testing.T) {
	collector, addr := newTestServer(t)
	collector.SetWorkerLastRecvTimestampNS(0, 100)
	collector.SetWorkerLastRecvTimestampNS(1, 200)

	families, err := scrapeMetrics(addr)
	require.NoError(t, err)

	byCore := gaugesByLabel(families["soconnect_worker_worker_last_recv_timestamp_ns"], "logical_core")
	require.Equal(t, float64(100), byCore["0"])
	require.Equal(t, float64(200), byCore["1"])
}
