package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is reused by every subcommand that scrapes the daemon's
	// metrics endpoint.
	httpClient = &http.Client{Timeout: 5 * time.Second}

	// serverAddr is the daemon's metrics address (host:port), matching
	// soconnectd's --metrics-addr flag.
	serverAddr string

	// outputFormat controls status rendering (table or json); the metrics
	// command always prints the raw exposition.
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "soconnectctl",
	Short: "CLI inspector for a running soconnectd",
	Long:  "soconnectctl scrapes a soconnectd daemon's Prometheus metrics endpoint and reports worker and port status.",

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9090",
		"soconnectd metrics address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
