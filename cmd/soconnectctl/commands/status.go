package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	dto "github.com/prometheus/client_model/go"
)

// Metric family names this package reads, matching internal/metrics's
// namespace_subsystem_name construction.
const (
	familyRxPackets       = "soconnect_worker_rx_packets_total"
	familyTxPackets       = "soconnect_worker_tx_packets_total"
	familyTxDropped       = "soconnect_worker_tx_dropped_total"
	familyWorkerIntervals = "soconnect_worker_worker_intervals_total"
	familyActiveWorkers   = "soconnect_worker_active"
	familyControlTicks    = "soconnect_control_ticks_total"
)

// daemonStatus is the subset of scraped counters status renders.
type daemonStatus struct {
	RxPackets       float64
	TxPackets       float64
	TxDropped       float64
	WorkerIntervals float64
	ActiveWorkers   float64
	ControlTicks    float64
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize a running daemon's worker and control-plane counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			families, err := scrapeMetrics(serverAddr)
			if err != nil {
				return err
			}

			out, err := formatStatus(collectStatus(families), outputFormat)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

// collectStatus reduces the scraped families into one daemonStatus,
// summing per-(port,queue) and per-core series into process-wide totals.
func collectStatus(families map[string]*dto.MetricFamily) daemonStatus {
	return daemonStatus{
		RxPackets:       counterSum(families[familyRxPackets]),
		TxPackets:       counterSum(families[familyTxPackets]),
		TxDropped:       counterSum(families[familyTxDropped]),
		WorkerIntervals: counterSum(families[familyWorkerIntervals]),
		ActiveWorkers:   gaugeSum(families[familyActiveWorkers]),
		ControlTicks:    counterSum(families[familyControlTicks]),
	}
}
