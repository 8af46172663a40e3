package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	sharedApplication "github.com/felixgeelhaar/reslot/internal/shared/application"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

// Config tunes the reschedule handlers.
type Config struct {
	CandidateLimit  int
	SessionTTL      time.Duration
	MinSlotDuration time.Duration
}

// DefaultConfig offers three candidates for five minutes.
func DefaultConfig() Config {
	return Config{
		CandidateLimit: domain.DefaultCandidateLimit,
		SessionTTL:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.MinSlotDuration < 0 {
		c.MinSlotDuration = 0
	}
	return c
}

// Deps are the collaborators every handler records through.
type Deps struct {
	Store    domain.SessionStore
	Attempts domain.AttemptRepository
	Outbox   outbox.Repository
	UoW      sharedApplication.UnitOfWork
	Clock    domain.Clock
	Metrics  observability.Metrics
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.UoW == nil {
		d.UoW = sharedApplication.NoopUnitOfWork{}
	}
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Metrics == nil {
		d.Metrics = observability.NoopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// record stores the audit attempt, if any, and the pending events of sessions
// in one unit of work. The calendar is the source of truth, so a failure here
// is logged and counted but never undoes the outcome already reached.
func (d Deps) record(ctx context.Context, operation string, attempt *domain.RescheduleAttempt, sessions ...*domain.Session) {
	err := sharedApplication.WithUnitOfWork(ctx, d.UoW, func(txCtx context.Context) error {
		if attempt != nil && d.Attempts != nil {
			if err := d.Attempts.Create(txCtx, *attempt); err != nil {
				return err
			}
		}
		if d.Outbox == nil {
			return nil
		}

		var msgs []*outbox.Message
		for _, s := range sessions {
			if s == nil {
				continue
			}
			events := s.DomainEvents()
			sharedApplication.ApplyEventMetadata(events, sharedApplication.EventMetadataFromContext(ctx, s.UserID()))
			for _, event := range events {
				msg, err := outbox.NewMessage(event)
				if err != nil {
					return err
				}
				msgs = append(msgs, msg)
			}
			s.ClearDomainEvents()
		}
		if len(msgs) == 0 {
			return nil
		}
		return d.Outbox.SaveBatch(txCtx, msgs)
	})
	if err != nil {
		d.Metrics.Counter(observability.MetricOperationErrors, 1, observability.T("operation", operation))
		d.Logger.ErrorContext(ctx, "failed to record reschedule outcome", "operation", operation, "error", err)
	}
}

// countClosed increments the closed-session counter for each terminal session.
func (d Deps) countClosed(sessions ...*domain.Session) {
	for _, s := range sessions {
		if s == nil || !s.Status().IsTerminal() {
			continue
		}
		d.Metrics.Counter(observability.MetricSessionsClosed, 1,
			observability.T("status", string(s.Status())),
			observability.T("reason", string(s.CloseReason())),
		)
	}
}
