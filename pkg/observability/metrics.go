package observability

import (
	"strings"
	"sync"
	"time"
)

// Metrics records counters, gauges, histograms and timings. Tags become
// labels; a metric must be recorded with the same tag keys every time.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T is shorthand for Tag{key, value}.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// series holds everything recorded under one name and tag set.
type series struct {
	count   int64
	gauge   float64
	samples []float64
	timings []time.Duration
}

// InMemoryMetrics keeps every recorded value; tests assert against it.
type InMemoryMetrics struct {
	mu     sync.Mutex
	series map[string]*series
}

// NewInMemoryMetrics creates an empty recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{series: make(map[string]*series)}
}

func (m *InMemoryMetrics) record(name string, tags []Tag, fn func(*series)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	s, ok := m.series[key]
	if !ok {
		s = &series{}
		m.series[key] = s
	}
	fn(s)
}

func (m *InMemoryMetrics) read(name string, tags []Tag) series {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.series[formatKey(name, tags)]; ok {
		cp := *s
		cp.samples = append([]float64(nil), s.samples...)
		cp.timings = append([]time.Duration(nil), s.timings...)
		return cp
	}
	return series{}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.count += value })
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.gauge = value })
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.samples = append(s.samples, value) })
}

func (m *InMemoryMetrics) Timing(name string, d time.Duration, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.timings = append(s.timings, d) })
}

func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	return m.read(name, tags).count
}

func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	return m.read(name, tags).gauge
}

func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	return m.read(name, tags).samples
}

func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	return m.read(name, tags).timings
}

// Reset forgets everything recorded so far.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.series)
}

// formatKey is name followed by ":k=v" per tag, in the order given.
func formatKey(name string, tags []Tag) string {
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteString(":")
		b.WriteString(t.Key)
		b.WriteString("=")
		b.WriteString(t.Value)
	}
	return b.String()
}

// Metric names. They follow Prometheus conventions so every Metrics
// implementation can export them unchanged.
const (
	MetricOperationTotal    = "reslot_operation_total"
	MetricOperationDuration = "reslot_operation_duration_seconds"
	MetricOperationErrors   = "reslot_operation_errors_total"

	// Sessions
	MetricSessionsOffered   = "reslot_sessions_offered_total"
	MetricSessionsClosed    = "reslot_sessions_closed_total"
	MetricCandidatesOffered = "reslot_candidates_offered"
	MetricSelections        = "reslot_selections_total"
	MetricTimeToCommit      = "reslot_session_time_to_commit_seconds"

	// Availability
	MetricFreeSlotSearch = "reslot_free_slot_search_seconds"
	MetricProviderCalls  = "reslot_provider_calls_total"
	MetricBreakerState   = "reslot_provider_breaker_state"

	// Sweeper
	MetricSweepExpired = "reslot_sweep_expired_total"
	MetricSweepRemoved = "reslot_sweep_removed_total"

	// Event relay
	MetricOutboxMessages = "reslot_outbox_messages_total"
	MetricOutboxLag      = "reslot_outbox_lag_seconds"
	MetricEventsConsumed = "reslot_events_consumed_total"
)
