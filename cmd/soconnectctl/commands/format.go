// Package commands implements the soconnectctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is
// not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStatus renders a daemonStatus in the requested format.
func formatStatus(s daemonStatus, format string) (string, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(b) + "\n", nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "METRIC\tVALUE")
		fmt.Fprintf(w, "rx_packets\t%.0f\n", s.RxPackets)
		fmt.Fprintf(w, "tx_packets\t%.0f\n", s.TxPackets)
		fmt.Fprintf(w, "tx_dropped\t%.0f\n", s.TxDropped)
		fmt.Fprintf(w, "worker_intervals\t%.0f\n", s.WorkerIntervals)
		fmt.Fprintf(w, "active_workers\t%.0f\n", s.ActiveWorkers)
		fmt.Fprintf(w, "control_ticks\t%.0f\n", s.ControlTicks)
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush status table: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
