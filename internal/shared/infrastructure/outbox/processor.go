package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig polls every 500ms; session events are low volume.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

func (c ProcessorConfig) retryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: c.MaxRetries, Base: c.RetryBackoffBase, Max: c.RetryBackoffMax}
}

// Stats is a snapshot of the relay for health endpoints and periodic logs.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

type outcome string

const (
	outcomePublished outcome = "published"
	outcomeFailed    outcome = "failed"
	outcomeDead      outcome = "dead"
)

// Processor relays session events from the outbox to the broker, at least
// once and in creation order per batch.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	policy    RetryPolicy
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	published, failed, dead atomic.Uint64

	mu     sync.Mutex
	status Stats
}

// NewProcessor creates a stopped processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		policy:    config.retryPolicy(),
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
	}
}

// WithMetrics reports publish outcomes and lag to m.
func (p *Processor) WithMetrics(m observability.Metrics) *Processor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Start launches the poll loop. It is a no-op when already running. The loop
// ends on Stop or when ctx is done.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.runningLocked() {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop ends the loop and waits for the batch in flight.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
	p.logger.Info("outbox processor stopped")
}

func (p *Processor) IsRunning() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.runningLocked()
}

func (p *Processor) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch. Publish failures are recorded on the
// message; only a failure to read the batch is returned.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return fmt.Errorf("load outbox batch: %w", err)
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			return nil
		}
		result := p.deliver(ctx, msg)
		p.metrics.Counter(observability.MetricOutboxMessages, 1, observability.T("outcome", string(result)))
	}
	return nil
}

func (p *Processor) deliver(ctx context.Context, msg *Message) outcome {
	if md := msg.eventMetadata(); md.CorrelationID != uuid.Nil {
		ctx = observability.WithCorrelationID(ctx, md.CorrelationID.String())
	}
	log := p.logger.With("id", msg.ID, "event_id", msg.EventID, "routing_key", msg.RoutingKey)

	pubErr := p.publish(ctx, msg)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			// Published but unmarked: the next pass sends it again.
			log.ErrorContext(ctx, "mark published failed", "error", err)
		}
		p.published.Add(1)
		return outcomePublished
	}

	p.noteError(pubErr)
	log.WarnContext(ctx, "publish failed", "attempt", msg.RetryCount+1, "error", pubErr)
	if p.policy.Exhausted(msg) {
		p.dead.Add(1)
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			log.ErrorContext(ctx, "mark dead failed", "error", err)
		}
		return outcomeDead
	}
	p.failed.Add(1)
	next := p.now().Add(p.policy.Backoff(msg.RetryCount + 1))
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), next); err != nil {
		log.ErrorContext(ctx, "mark failed failed", "error", err)
	}
	return outcomeFailed
}

func (p *Processor) publish(ctx context.Context, msg *Message) error {
	md := msg.eventMetadata()
	body, err := json.Marshal(eventbus.ConsumedEvent{
		EventID:       msg.EventID,
		AggregateID:   msg.AggregateID,
		AggregateType: msg.AggregateType,
		RoutingKey:    msg.RoutingKey,
		OccurredAt:    msg.CreatedAt,
		Payload:       msg.Payload,
		Metadata: eventbus.EventMetadata{
			UserID:        md.UserID,
			CorrelationID: md.CorrelationID.String(),
			CausationID:   md.CausationID.String(),
		},
	})
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, msg.RoutingKey, body)
}

// GetStats returns a snapshot.
func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()
	s.IsRunning = p.IsRunning()
	s.PublishedCount = p.published.Load()
	s.FailedCount = p.failed.Load()
	s.DeadCount = p.dead.Load()
	return s
}

func (p *Processor) noteError(err error) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastError = err.Error()
	p.status.LastErrorAt = &now
}

// noteBatch records lag as the age of the oldest pending message.
func (p *Processor) noteBatch(batch []*Message) {
	now := p.now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			t := msg.CreatedAt
			oldest = &t
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}

	p.mu.Lock()
	p.status.LastProcessedAt = &now
	p.status.OldestMessageAt = oldest
	p.status.LagSeconds = lag
	p.mu.Unlock()
	p.metrics.Gauge(observability.MetricOutboxLag, lag)
}
