// Package metrics exposes the framework's Prometheus metrics: per
// (port, queue) burst counters, RSS queue-placement counters, the
// per-worker nb_interval_* counters and last_recv_record_timestamp
// gauge the control plane reads (spec §5), and the offline
// tail-latency gauges (spec §4.8).
//
// Grounded on the teacher's internal/metrics collector: the same
// namespace/subsystem constant pair, the same "build every metric
// unregistered, then MustRegister them all in one NewCollector call"
// shape, generalized from per-peer BFD session labels to per-(port,
// queue) and per-logical-core labels.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "soconnect"
	subsystem = "worker"
)

// Label names.
const (
	labelPort        = "port"
	labelQueue       = "queue"
	labelLogicalCore = "logical_core"
	labelPercentile  = "percentile"
)

// Collector holds every Prometheus metric the framework maintains
// about its own operation, independent of any application module's
// own metrics.
type Collector struct {
	// RxPackets counts packets received per (port, queue) (spec §4.5's
	// rx_burst call sites).
	RxPackets *prometheus.CounterVec

	// TxPackets counts packets successfully transmitted per (port, queue).
	TxPackets *prometheus.CounterVec

	// TxRetries counts TransmitBurst retry attempts per (port, queue)
	// (spec §4.5's BURST_TX_RETRIES policy).
	TxRetries *prometheus.CounterVec

	// TxDropped counts buffers freed after TransmitBurst exhausted its
	// retries per (port, queue).
	TxDropped *prometheus.CounterVec

	// RSSQueueSelected counts how many generated packets targeted each
	// queue, for cross-checking the RSS calculator's placement against
	// the driver's actual delivery (spec §4.2 / §8 invariant 5).
	RSSQueueSelected *prometheus.CounterVec

	// WorkerIntervals counts control-plane dispatch intervals per logical
	// core (one per ControlInfly call) -- the nb_interval_* counter spec §5 names as control-plane
	// readable, owning-worker writable.
	WorkerIntervals *prometheus.CounterVec

	// WorkerLastRecvTimestampNS records the last successful receive
	// timestamp (nanoseconds) per logical core.
	WorkerLastRecvTimestampNS *prometheus.GaugeVec

	// ControlTicks counts control-plane loop iterations.
	ControlTicks prometheus.Counter

	// ActiveWorkers reports how many workers are currently in the
	// Running state.
	ActiveWorkers prometheus.Gauge

	// TailLatencyMicros reports the most recently computed tail-latency
	// value, in microseconds, per percentile (spec §4.8's {0.10, 0.50,
	// 0.80, 0.99}).
	TailLatencyMicros *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers every metric against
// reg. A nil reg registers against prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()
	reg.MustRegister(
		c.RxPackets,
		c.TxPackets,
		c.TxRetries,
		c.TxDropped,
		c.RSSQueueSelected,
		c.WorkerIntervals,
		c.WorkerLastRecvTimestampNS,
		c.ControlTicks,
		c.ActiveWorkers,
		c.TailLatencyMicros,
	)
	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	portQueueLabels := []string{labelPort, labelQueue}
	coreLabels := []string{labelLogicalCore}

	return &Collector{
		RxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "rx_packets_total", Help: "Total packets received per port/queue.",
		}, portQueueLabels),

		TxPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "tx_packets_total", Help: "Total packets transmitted per port/queue.",
		}, portQueueLabels),

		TxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "tx_retries_total", Help: "Total transmit burst retry attempts per port/queue.",
		}, portQueueLabels),

		TxDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "tx_dropped_total", Help: "Total buffers dropped after transmit retries were exhausted.",
		}, portQueueLabels),

		RSSQueueSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "rss_queue_selected_total", Help: "Total packets generated targeting each RSS queue.",
		}, portQueueLabels),

		WorkerIntervals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "worker_intervals_total", Help: "Total control-plane dispatch intervals per logical core.",
		}, coreLabels),

		WorkerLastRecvTimestampNS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "worker_last_recv_timestamp_ns", Help: "Timestamp of the last successful receive, per logical core.",
		}, coreLabels),

		ControlTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "control",
			Name: "ticks_total", Help: "Total control-plane loop iterations.",
		}),

		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "active", Help: "Number of workers currently in the Running state.",
		}),

		TailLatencyMicros: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "latency",
			Name: "tail_microseconds", Help: "Most recently computed tail latency, in microseconds, per percentile.",
		}, []string{labelPercentile}),
	}
}

func portQueueLabelValues(port, queue int) []string {
	return []string{strconv.Itoa(port), strconv.Itoa(queue)}
}

// IncRxPackets records n packets received on (port, queue).
func (c *Collector) IncRxPackets(port, queue, n int) {
	c.RxPackets.WithLabelValues(portQueueLabelValues(port, queue)...).Add(float64(n))
}

// IncTxPackets records n packets transmitted on (port, queue).
func (c *Collector) IncTxPackets(port, queue, n int) {
	c.TxPackets.WithLabelValues(portQueueLabelValues(port, queue)...).Add(float64(n))
}

// IncTxRetries records one more retry attempt on (port, queue).
func (c *Collector) IncTxRetries(port, queue int) {
	c.TxRetries.WithLabelValues(portQueueLabelValues(port, queue)...).Inc()
}

// IncTxDropped records n buffers dropped after retries were exhausted
// on (port, queue).
func (c *Collector) IncTxDropped(port, queue, n int) {
	c.TxDropped.WithLabelValues(portQueueLabelValues(port, queue)...).Add(float64(n))
}

// IncRSSQueueSelected records one generated packet targeting queue on
// port.
func (c *Collector) IncRSSQueueSelected(port, queue int) {
	c.RSSQueueSelected.WithLabelValues(portQueueLabelValues(port, queue)...).Inc()
}

// IncWorkerIntervals records one control-plane dispatch interval on
// logicalCore.
func (c *Collector) IncWorkerIntervals(logicalCore int) {
	c.WorkerIntervals.WithLabelValues(strconv.Itoa(logicalCore)).Inc()
}

// SetWorkerLastRecvTimestampNS records logicalCore's last successful
// receive timestamp.
func (c *Collector) SetWorkerLastRecvTimestampNS(logicalCore int, ns int64) {
	c.WorkerLastRecvTimestampNS.WithLabelValues(strconv.Itoa(logicalCore)).Set(float64(ns))
}

// IncControlTick records one control-plane loop iteration.
func (c *Collector) IncControlTick() {
	c.ControlTicks.Inc()
}

// SetActiveWorkers records how many workers are currently Running.
func (c *Collector) SetActiveWorkers(n int) {
	c.ActiveWorkers.Set(float64(n))
}

// SetTailLatencyMicros records the most recent tail-latency value for
// percent (e.g. "0.99").
func (c *Collector) SetTailLatencyMicros(percent string, micros int64) {
	c.TailLatencyMicros.WithLabelValues(percent).Set(float64(micros))
}
