package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ensure PrometheusFactory implements MetricFactory.
var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory creates metrics on its own Prometheus registry. Dotted
// metric names are rewritten to Prometheus form, so "subledger.plan.created"
// becomes "subledger_plan_created_total".
type PrometheusFactory struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory creates a factory backed by a fresh registry.
func NewPrometheusFactory() *PrometheusFactory {
	return &PrometheusFactory{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the underlying registry.
func (f *PrometheusFactory) Registry() *prometheus.Registry { return f.registry }

// Handler returns an HTTP handler that serves the registry's metrics.
func (f *PrometheusFactory) Handler() http.Handler {
	return promhttp.HandlerFor(f.registry, promhttp.HandlerOpts{})
}

// Counter returns the counter registered under name, creating it on first use.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Total " + name + " events",
	})
	f.registry.MustRegister(c)
	f.counters[name] = c
	return c
}

// Histogram returns the histogram registered under name, creating it on first use.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name,
		Buckets: prometheus.ExponentialBuckets(1, 10, 10),
	})
	f.registry.MustRegister(h)
	f.histograms[name] = h
	return h
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
