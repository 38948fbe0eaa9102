package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// metricsCmd passes the daemon's raw /metrics exposition through
// unmodified, for callers that want the full Prometheus text format
// rather than status's curated summary.
func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the daemon's raw Prometheus metrics exposition",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := httpClient.Get("http://" + serverAddr + "/metrics")
			if err != nil {
				return fmt.Errorf("fetch metrics from %s: %w", serverAddr, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch metrics from %s: unexpected status %s", serverAddr, resp.Status)
			}
			_, err = io.Copy(os.Stdout, resp.Body)
			return err
		},
	}
}
