package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/reslot/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange reschedule session events go to.
const DefaultExchange = "reslot.reschedule.events"

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("rabbitmq: publish not confirmed")

// RabbitMQPublisher publishes to a durable topic exchange on a confirm-mode
// channel. Publish returns only once the broker has taken the message, so the
// outbox marks nothing published that the broker might drop. A lost
// connection is redialled on the next Publish.
type RabbitMQPublisher struct {
	url      string
	exchange string
	logger   *slog.Logger
	dial     func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher dials url and declares the exchange. An empty
// exchange selects DefaultExchange.
func NewRabbitMQPublisher(url, exchange string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &RabbitMQPublisher{url: url, exchange: exchange, logger: logger, dial: amqp.Dial}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	logger.Info("rabbitmq publisher connected", "exchange", exchange)
	return p, nil
}

func (p *RabbitMQPublisher) connectLocked() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}
	p.conn, p.channel = conn, ch
	return nil
}

// Publish sends a persistent JSON message and waits for the broker's ack.
// The correlation id on ctx, if any, travels as the AMQP correlation id.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		p.logger.WarnContext(ctx, "rabbitmq connection lost, redialling")
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			AppId:         "reslot",
			CorrelationId: observability.CorrelationIDFromContext(ctx),
			Body:          payload,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: confirm %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, routingKey)
	}
	p.logger.DebugContext(ctx, "event published", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Ping fails when the connection is gone; the health registry uses it.
func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.IsClosed() {
		return errors.New("connection closed")
	}
	return nil
}

// IsClosed reports whether the broker connection was lost.
func (p *RabbitMQPublisher) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn == nil || p.conn.IsClosed()
}

// Close closes the channel and connection. Publish after Close redials.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("closing rabbitmq channel", "error", err)
	}
	err := p.conn.Close()
	p.conn, p.channel = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// NoopPublisher drops messages; used when no broker is configured and no
// in-process consumers are registered.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.DebugContext(ctx, "noop publish", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
