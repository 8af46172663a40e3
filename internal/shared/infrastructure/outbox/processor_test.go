package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	bodies    [][]byte
	failKeys  map[string]bool
}

func newRecordingPublisher(failKeys ...string) *recordingPublisher {
	p := &recordingPublisher{failKeys: make(map[string]bool)}
	for _, k := range failKeys {
		p.failKeys[k] = true
	}
	return p
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[routingKey] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, routingKey)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type sessionEvent struct {
	domain.BaseEvent
	EventRef string `json:"event_ref"`
}

func newMessage(t *testing.T, routingKey string) *outbox.Message {
	t.Helper()
	evt := &sessionEvent{
		BaseEvent: domain.NewBaseEventAt(uuid.New(), "RescheduleSession", routingKey, time.Now()),
		EventRef:  "evt-1",
	}
	evt.SetMetadata(domain.EventMetadata{CorrelationID: uuid.New(), UserID: uuid.New()})
	msg, err := outbox.NewMessage(evt)
	require.NoError(t, err)
	return msg
}

func TestNewMessage(t *testing.T) {
	msg := newMessage(t, "reschedule.session.offered")

	assert.Equal(t, "RescheduleSession", msg.AggregateType)
	assert.Equal(t, "reschedule.session.offered", msg.RoutingKey)
	assert.Equal(t, msg.RoutingKey, msg.EventType)
	assert.Contains(t, string(msg.Payload), `"event_ref":"evt-1"`)
	assert.NotEmpty(t, msg.Metadata)
	assert.False(t, msg.IsPublished())
	assert.False(t, msg.IsDead())
}

func TestRetryPolicy(t *testing.T) {
	policy := outbox.RetryPolicy{MaxRetries: 3, Base: time.Second, Max: 5 * time.Second}
	msg := &outbox.Message{}

	assert.False(t, policy.Exhausted(msg))
	msg.RetryCount = 2
	assert.True(t, policy.Exhausted(msg), "third failure is the last")
	assert.True(t, outbox.RetryPolicy{}.Exhausted(&outbox.Message{}))

	assert.Equal(t, time.Second, policy.Backoff(1))
	assert.Equal(t, 2*time.Second, policy.Backoff(2))
	assert.Equal(t, 4*time.Second, policy.Backoff(3))
	assert.Equal(t, 5*time.Second, policy.Backoff(4))
	assert.Equal(t, 5*time.Second, policy.Backoff(40))
	assert.Equal(t, time.Second, outbox.RetryPolicy{}.Backoff(0))
}

func TestProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	pub := newRecordingPublisher()
	metrics := observability.NewInMemoryMetrics()
	p := outbox.NewProcessor(repo, pub, outbox.DefaultProcessorConfig(), nil).WithMetrics(metrics)

	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{
		newMessage(t, "reschedule.session.offered"),
		newMessage(t, "reschedule.session.committed"),
	}))

	require.NoError(t, p.ProcessOnce(ctx))

	assert.Equal(t, []string{"reschedule.session.offered", "reschedule.session.committed"}, pub.keys())
	for _, msg := range repo.Messages() {
		assert.True(t, msg.IsPublished())
	}
	stats := p.GetStats()
	assert.Equal(t, uint64(2), stats.PublishedCount)
	assert.NotNil(t, stats.LastProcessedAt)
	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricOutboxMessages, observability.T("outcome", "published")))

	var env eventbus.ConsumedEvent
	require.NoError(t, json.Unmarshal(pub.bodies[0], &env))
	first := repo.Messages()[0]
	assert.Equal(t, first.EventID, env.EventID)
	assert.Equal(t, "RescheduleSession", env.AggregateType)
	assert.JSONEq(t, string(first.Payload), string(env.Payload))
	assert.NotEqual(t, uuid.Nil, env.Metadata.UserID)

	// Nothing left on the second pass.
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Len(t, pub.keys(), 2)
}

func TestProcessor_PublishFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	pub := newRecordingPublisher("reschedule.session.expired")
	p := outbox.NewProcessor(repo, pub, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, newMessage(t, "reschedule.session.expired")))
	require.NoError(t, p.ProcessOnce(ctx))

	msgs := repo.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].NextRetryAt)
	assert.True(t, msgs[0].NextRetryAt.After(time.Now()))
	require.NotNil(t, msgs[0].LastError)
	assert.Equal(t, "broker unavailable", *msgs[0].LastError)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.Equal(t, "broker unavailable", stats.LastError)

	// Backoff keeps it out of the next batch.
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Equal(t, uint64(1), p.GetStats().FailedCount)
}

func TestProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	pub := newRecordingPublisher("reschedule.session.cancelled")
	cfg := outbox.DefaultProcessorConfig()
	cfg.MaxRetries = 1
	p := outbox.NewProcessor(repo, pub, cfg, nil)

	require.NoError(t, repo.Save(ctx, newMessage(t, "reschedule.session.cancelled")))
	require.NoError(t, p.ProcessOnce(ctx))

	msgs := repo.Messages()
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].DeadLetteredAt)
	assert.Equal(t, uint64(1), p.GetStats().DeadCount)
}

func TestProcessor_StartStop(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := newRecordingPublisher()
	p := outbox.NewProcessor(repo, pub, outbox.ProcessorConfig{
		PollInterval:     5 * time.Millisecond,
		BatchSize:        10,
		MaxRetries:       3,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  10 * time.Millisecond,
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.GetStats().IsRunning)

	require.NoError(t, repo.Save(context.Background(), newMessage(t, "reschedule.session.offered")))
	assert.Eventually(t, func() bool { return len(pub.keys()) == 1 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestProcessor_StopsWithContext(t *testing.T) {
	p := outbox.NewProcessor(outbox.NewInMemoryRepository(), newRecordingPublisher(), outbox.ProcessorConfig{
		PollInterval: time.Millisecond,
		BatchSize:    1,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	assert.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, time.Millisecond)

	require.NoError(t, p.Start(context.Background()), "restart after the context ended")
	assert.True(t, p.IsRunning())
	p.Stop()
}
