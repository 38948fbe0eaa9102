// soconnectctl is a small CLI inspector for a running soconnectd: it
// scrapes the daemon's Prometheus metrics endpoint and renders a subset
// of series as human-readable status, standing in for the control-plane
// query interface a real deployment would expose over RPC.
package main

import "github.com/soconnect-project/soconnect/cmd/soconnectctl/commands"

func main() {
	commands.Execute()
}
