package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Handle(ctx context.Context) (domain.SweepResult, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return domain.SweepResult{}, errors.New("pass without deadline")
	}
	return domain.SweepResult{Removed: 1}, r.err
}

func TestSweeper_RunOnce(t *testing.T) {
	runner := &countingRunner{}
	sweeper := NewSweeper(runner, SweeperConfig{Interval: time.Minute}, nil)

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	stats := sweeper.Stats()
	assert.Equal(t, 1, stats.Passes)
	assert.False(t, stats.LastRun.IsZero())
	assert.NoError(t, stats.LastErr)
	assert.False(t, stats.Running)
}

func TestSweeper_RunOnceRecordsError(t *testing.T) {
	runner := &countingRunner{err: errors.New("redis down")}
	sweeper := NewSweeper(runner, SweeperConfig{}, nil)

	_, err := sweeper.RunOnce(context.Background())
	assert.EqualError(t, err, "redis down")
	assert.EqualError(t, sweeper.Stats().LastErr, "redis down")
}

func TestSweeper_RunOnceRecordsMetrics(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	runner := &countingRunner{}
	sweeper := NewSweeper(runner, SweeperConfig{Metrics: metrics}, nil)

	_, _ = sweeper.RunOnce(context.Background())
	runner.err = errors.New("redis down")
	_, _ = sweeper.RunOnce(context.Background())

	op := observability.T("operation", "reschedule.sweep")
	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricOperationTotal, op))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationErrors, op))
}

func TestSweeper_Defaults(t *testing.T) {
	sweeper := NewSweeper(&countingRunner{}, SweeperConfig{}, nil)
	assert.Equal(t, DefaultSweepInterval, sweeper.config.Interval)
	assert.Equal(t, DefaultSweepInterval, sweeper.config.Timeout)
}

func TestSweeper_StartStop(t *testing.T) {
	runner := &countingRunner{}
	sweeper := NewSweeper(runner, SweeperConfig{Interval: time.Second}, nil)

	require.NoError(t, sweeper.Start(context.Background()))
	assert.True(t, sweeper.IsRunning())
	assert.ErrorIs(t, sweeper.Start(context.Background()), ErrSweeperRunning)

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	sweeper.Stop()
	assert.False(t, sweeper.IsRunning())

	calls := runner.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load())

	sweeper.Stop()
}
