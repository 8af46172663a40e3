package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is how often the sweeper runs when no interval is set.
const DefaultSweepInterval = 30 * time.Second

// ErrSweeperRunning is returned by Start on a running sweeper.
var ErrSweeperRunning = errors.New("sweeper already running")

// SweepRunner runs one sweep pass.
type SweepRunner interface {
	Handle(ctx context.Context) (domain.SweepResult, error)
}

var _ SweepRunner = (*commands.SweepSessionsHandler)(nil)

// SweeperConfig configures the Sweeper.
type SweeperConfig struct {
	Interval time.Duration
	// Timeout bounds a single pass. Zero means the interval.
	Timeout time.Duration
	Metrics observability.Metrics
}

// Sweeper periodically expires stale reschedule sessions on a cron schedule.
// Overlapping passes are skipped.
type Sweeper struct {
	runner SweepRunner
	config SweeperConfig
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
	lastErr error
	lastRun time.Time
	passes  int
}

// NewSweeper creates a sweeper around runner.
func NewSweeper(runner SweepRunner, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	return &Sweeper{runner: runner, config: config, logger: logger}
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrSweeperRunning
	}

	s.baseCtx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	c.Schedule(cron.Every(s.config.Interval), cron.FuncJob(func() {
		_, _ = s.RunOnce(s.baseCtx)
	}))
	c.Start()
	s.cron = c

	s.logger.Info("session sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop cancels the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	<-c.Stop().Done()
	cancel()
	s.logger.Info("session sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// RunOnce performs a single sweep pass bounded by the configured timeout.
func (s *Sweeper) RunOnce(ctx context.Context) (domain.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	timer := observability.StartTimer("reschedule.sweep", s.config.Metrics)
	result, err := s.runner.Handle(ctx)
	timer.Stop(err)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.passes++
	s.mu.Unlock()
	return result, err
}

// SweeperStats describes the sweeper's recent activity.
type SweeperStats struct {
	Running bool
	Passes  int
	LastRun time.Time
	LastErr error
}

// Stats returns a snapshot of the sweeper's activity.
func (s *Sweeper) Stats() SweeperStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SweeperStats{
		Running: s.cron != nil,
		Passes:  s.passes,
		LastRun: s.lastRun,
		LastErr: s.lastErr,
	}
}
