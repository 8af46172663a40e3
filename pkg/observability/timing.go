package observability

import "time"

// Timer measures one run of an operation and reports it as
// MetricOperationDuration, MetricOperationTotal and, on failure,
// MetricOperationErrors, all tagged with the operation name.
type Timer struct {
	operation string
	start     time.Time
	metrics   Metrics
	tags      []Tag
}

// StartTimer starts timing operation. A nil metrics records nothing.
func StartTimer(operation string, metrics Metrics) *Timer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Timer{operation: operation, start: time.Now(), metrics: metrics}
}

// WithTags adds tags to every metric the timer records.
func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records the run and returns its duration.
func (t *Timer) Stop(err error) time.Duration {
	duration := time.Since(t.start)
	tags := append(append([]Tag{}, t.tags...), T("operation", t.operation))
	t.metrics.Timing(MetricOperationDuration, duration, tags...)
	t.metrics.Counter(MetricOperationTotal, 1, tags...)
	if err != nil {
		t.metrics.Counter(MetricOperationErrors, 1, tags...)
	}
	return duration
}
