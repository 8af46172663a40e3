package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	m := NewInMemoryMetrics()
	op := T("operation", "sweep")

	StartTimer("sweep", m).Stop(nil)
	StartTimer("sweep", m).Stop(errors.New("boom"))

	assert.Equal(t, int64(2), m.GetCounter(MetricOperationTotal, op))
	assert.Equal(t, int64(1), m.GetCounter(MetricOperationErrors, op))
	require.Len(t, m.GetTimings(MetricOperationDuration, op), 2)
}

func TestTimer_TagsAndNilMetrics(t *testing.T) {
	m := NewInMemoryMetrics()
	StartTimer("fetch", m).WithTags(T("provider", "ics")).Stop(nil)
	assert.Equal(t, int64(1), m.GetCounter(MetricOperationTotal, T("provider", "ics"), T("operation", "fetch")))

	assert.NotPanics(t, func() { StartTimer("fetch", nil).Stop(nil) })
}
