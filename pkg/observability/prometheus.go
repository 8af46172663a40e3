package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics on a Prometheus registry. Vectors are
// created on first use; the label names of that first call fix the label set
// for the metric. Later calls fill missing labels with "" and drop extras.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

// NewPrometheusMetrics creates a collector backed by reg. A nil registry gets
// a fresh one with the Go runtime and process collectors installed.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &PrometheusMetrics{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
	}
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, m.labelNames(name, tags))
		vec = register(m.registry, vec)
		m.counters[name] = vec
	}
	vec.With(m.labelValues(name, tags)).Add(float64(value))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, m.labelNames(name, tags))
		vec = register(m.registry, vec)
		m.gauges[name] = vec
	}
	vec.With(m.labelValues(name, tags)).Set(value)
}

func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histogram(name, tags).With(m.labelValues(name, tags)).Observe(value)
}

// Timing records the duration in seconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histogram(name, tags).With(m.labelValues(name, tags)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) histogram(name string, tags []Tag) *prometheus.HistogramVec {
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, m.labelNames(name, tags))
		vec = register(m.registry, vec)
		m.histograms[name] = vec
	}
	return vec
}

func (m *PrometheusMetrics) labelNames(name string, tags []Tag) []string {
	if names, ok := m.labels[name]; ok {
		return names
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Key)
	}
	m.labels[name] = names
	return names
}

func (m *PrometheusMetrics) labelValues(name string, tags []Tag) prometheus.Labels {
	names := m.labels[name]
	labels := make(prometheus.Labels, len(names))
	for _, n := range names {
		labels[n] = ""
	}
	for _, t := range tags {
		if _, ok := labels[t.Key]; ok {
			labels[t.Key] = t.Value
		}
	}
	return labels
}

// register returns the collector already registered under the same
// descriptor, if any. A collector the registry rejects still records values;
// it is just not exported.
func register[C prometheus.Collector](reg *prometheus.Registry, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
