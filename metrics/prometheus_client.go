package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registryCollector bridges a Registry into the real prometheus client
// library as a prometheus.Collector, so metrics recorded through Counter,
// Gauge, and Histogram are scraped via the canonical client_golang/promhttp
// path rather than a hand-rolled text exposition writer.
type registryCollector struct {
	namespace string
	registry  *Registry
}

// NewPrometheusCollector wraps a Registry as a prometheus.Collector. All
// counters and gauges are exported as their native Prometheus types;
// histograms are exported as _count/_sum/_min/_max/_mean gauges.
func NewPrometheusCollector(namespace string, r *Registry) prometheus.Collector {
	return &registryCollector{namespace: namespace, registry: r}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	// Metric set is dynamic (registry is get-or-create); Collect is
	// always used in unchecked mode, so Describe intentionally emits
	// nothing.
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	for name, ctr := range c.registry.counters {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(ctr.Value()))
	}
	for name, g := range c.registry.gauges {
		desc := prometheus.NewDesc(c.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	}
	for name, h := range c.registry.histograms {
		count, sum, min, max, mean := h.Count(), h.Sum(), h.Min(), h.Max(), h.Mean()
		emit := func(suffix string, v float64) {
			desc := prometheus.NewDesc(c.promName(name)+suffix, name+suffix, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
		}
		emit("_count", float64(count))
		emit("_sum", sum)
		emit("_min", min)
		emit("_max", max)
		emit("_mean", mean)
	}
}

func (c *registryCollector) promName(name string) string {
	sanitized := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch ch := name[i]; {
		case ch == '.' || ch == '-':
			sanitized = append(sanitized, '_')
		default:
			sanitized = append(sanitized, ch)
		}
	}
	if c.namespace == "" {
		return string(sanitized)
	}
	return c.namespace + "_" + string(sanitized)
}

// NewPrometheusHandler builds an http.Handler serving r's metrics in
// Prometheus exposition format via the real client library, registered
// under its own isolated prometheus.Registry, so it exposes only the
// world-state metrics: client_golang's default go_* and process_*
// collectors are not registered there.
func NewPrometheusHandler(namespace string, r *Registry) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPrometheusCollector(namespace, r))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
