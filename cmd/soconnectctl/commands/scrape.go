package commands

import (
	"fmt"
	"net/http"

	"github.com/prometheus/common/expfmt"

	dto "github.com/prometheus/client_model/go"
)

// scrapeMetrics fetches and parses the text-format exposition from
// addr's /metrics endpoint into one MetricFamily per series name.
func scrapeMetrics(addr string) (map[string]*dto.MetricFamily, error) {
	resp, err := httpClient.Get("http://" + addr + "/metrics")
	if err != nil {
		return nil, fmt.Errorf("fetch metrics from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metrics from %s: unexpected status %s", addr, resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics from %s: %w", addr, err)
	}
	return families, nil
}

// counterSum adds up every sample's counter value across every label
// combination in family (nil-safe: an absent family contributes zero).
func counterSum(family *dto.MetricFamily) float64 {
	if family == nil {
		return 0
	}
	var total float64
	for _, m := range family.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

// gaugeSum adds up every sample's gauge value across every label
// combination in family (nil-safe: an absent family contributes zero).
func gaugeSum(family *dto.MetricFamily) float64 {
	if family == nil {
		return 0
	}
	var total float64
	for _, m := range family.GetMetric() {
		total += m.GetGauge().GetValue()
	}
	return total
}

// gaugesByLabel returns one family's gauge values keyed by the value of
// labelName on each sample, for families with exactly one label (e.g.
// soconnect_worker_worker_last_recv_timestamp_ns keyed by logical_core).
func gaugesByLabel(family *dto.MetricFamily, labelName string) map[string]float64 {
	out := make(map[string]float64)
	if family == nil {
		return out
	}
	for _, m := range family.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == labelName {
				out[l.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}
