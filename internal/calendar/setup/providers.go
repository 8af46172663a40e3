// Package setup registers the calendar providers the binaries can use.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/caldav"
	googleCal "github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/google"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/ics"
	microsoftCal "github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/microsoft"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/resilience"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

// CalDAVConfig describes one CalDAV account.
type CalDAVConfig struct {
	URL          string
	Username     string
	Password     string
	CalendarPath string
	// Attendees maps attendee addresses to calendar collections readable by
	// the account.
	Attendees map[string]string
}

// ProviderConfig holds configuration for creating provider factories.
type ProviderConfig struct {
	GoogleOAuth    application.TokenSourceProvider
	MicrosoftOAuth application.TokenSourceProvider
	CalDAV         CalDAVConfig

	// Google
	CalendarID  string
	SendUpdates string

	// Feeds are read through Fetcher. They back the ics provider and are
	// overlaid on every other provider's busy time.
	Feeds      []ics.Feed
	Fetcher    *ics.Fetcher
	HTTPClient *http.Client

	Breaker resilience.BreakerConfig
	Metrics observability.Metrics
	Logger  *slog.Logger
}

type builder struct {
	kind    domain.ProviderType
	enabled func(ProviderConfig) bool
	build   func(ProviderConfig, *slog.Logger) (application.Provider, error)
}

var builders = []builder{
	{
		kind:    domain.ProviderGoogle,
		enabled: func(c ProviderConfig) bool { return c.GoogleOAuth != nil },
		build: func(c ProviderConfig, logger *slog.Logger) (application.Provider, error) {
			return googleCal.NewProvider(c.GoogleOAuth, logger).
				WithCalendarID(c.CalendarID).
				WithSendUpdates(c.SendUpdates), nil
		},
	},
	{
		kind:    domain.ProviderMicrosoft,
		enabled: func(c ProviderConfig) bool { return c.MicrosoftOAuth != nil },
		build: func(c ProviderConfig, logger *slog.Logger) (application.Provider, error) {
			return microsoftCal.NewProvider(c.MicrosoftOAuth, logger), nil
		},
	},
	{
		kind:    domain.ProviderApple,
		enabled: ProviderConfig.hasCalDAV,
		build: func(c ProviderConfig, logger *slog.Logger) (application.Provider, error) {
			baseURL := c.CalDAV.URL
			if baseURL == "" {
				baseURL = caldav.AppleCalDAVURL
			}
			return c.CalDAV.provider(baseURL, logger), nil
		},
	},
	{
		kind:    domain.ProviderCalDAV,
		enabled: ProviderConfig.hasCalDAV,
		build: func(c ProviderConfig, logger *slog.Logger) (application.Provider, error) {
			if c.CalDAV.URL == "" {
				return nil, errors.New("caldav url not configured")
			}
			return c.CalDAV.provider(c.CalDAV.URL, logger), nil
		},
	},
	{
		kind:    domain.ProviderICS,
		enabled: func(c ProviderConfig) bool { return len(c.Feeds) > 0 },
		build: func(c ProviderConfig, logger *slog.Logger) (application.Provider, error) {
			fetcher, err := c.fetcher(logger)
			if err != nil {
				return nil, err
			}
			return ics.NewProvider(fetcher, c.Feeds, logger), nil
		},
	},
}

// RegisterProviders registers a factory for every provider the configuration
// has credentials or feeds for.
func RegisterProviders(registry *application.ProviderRegistry, config ProviderConfig) {
	logger := config.logger()
	for _, b := range builders {
		if !b.enabled(config) {
			continue
		}
		registry.Register(b.kind, func(context.Context) (application.Provider, error) {
			return b.build(config, logger)
		})
		logger.Debug("registered calendar provider", "provider", b.kind)
	}
}

func (c ProviderConfig) hasCalDAV() bool { return c.CalDAV.Username != "" }

func (c CalDAVConfig) provider(baseURL string, logger *slog.Logger) *caldav.Provider {
	p := caldav.NewProvider(baseURL, c.Username, c.Password, logger).
		WithAttendeeCalendars(c.Attendees)
	if c.CalendarPath != "" {
		p.WithCalendarPath(c.CalendarPath)
	}
	return p
}

func (c ProviderConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c ProviderConfig) fetcher(logger *slog.Logger) (*ics.Fetcher, error) {
	if c.Fetcher != nil {
		return c.Fetcher, nil
	}
	return ics.NewFetcher(c.HTTPClient, 0, logger)
}

func (c ProviderConfig) guard(name domain.ProviderType, p application.Provider, logger *slog.Logger) application.Provider {
	return resilience.Wrap(string(name), p, c.Breaker, c.Metrics, logger)
}

// Resolve builds the provider registered for providerType behind a circuit
// breaker. Configured feeds are overlaid onto the busy time of any provider
// other than the feed provider itself.
func Resolve(ctx context.Context, registry *application.ProviderRegistry, providerType domain.ProviderType, config ProviderConfig) (application.Provider, error) {
	logger := config.logger()
	inner, err := registry.Create(ctx, providerType)
	if err != nil {
		return nil, fmt.Errorf("calendar provider %s: %w", providerType, err)
	}
	provider := config.guard(providerType, inner, logger)
	if !providerType.CanWrite() {
		logger.Info("calendar provider is read-only; moves will be rejected", "provider", providerType)
	}

	if providerType == domain.ProviderICS || len(config.Feeds) == 0 {
		return provider, nil
	}
	fetcher, err := config.fetcher(logger)
	if err != nil {
		return nil, err
	}
	overlay := config.guard(domain.ProviderICS, ics.NewProvider(fetcher, config.Feeds, logger), logger)
	return application.WithBusyOverlay(provider, logger, overlay), nil
}
