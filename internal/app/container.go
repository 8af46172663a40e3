package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	availabilityQueries "github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	googleCal "github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/google"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/ics"
	microsoftCal "github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/microsoft"
	"github.com/felixgeelhaar/reslot/internal/calendar/infrastructure/resilience"
	calendarSetup "github.com/felixgeelhaar/reslot/internal/calendar/setup"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	rescheduleCommands "github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	rescheduleQueries "github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	rescheduleServices "github.com/felixgeelhaar/reslot/internal/reschedule/application/services"
	rescheduleSubs "github.com/felixgeelhaar/reslot/internal/reschedule/application/subscribers"
	rescheduleDomain "github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	reschedulePersistence "github.com/felixgeelhaar/reslot/internal/reschedule/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/reslot/internal/shared/application"
	sharedCrypto "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reslot/pkg/config"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	UserID uuid.UUID

	// Observability
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics
	Health     *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Repositories
	SessionStore rescheduleDomain.SessionStore
	AttemptRepo  rescheduleDomain.AttemptRepository
	OutboxRepo   outbox.Repository
	TokenRepo    identityOAuth.TokenRepository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Publishers
	EventPublisher    eventbus.Publisher
	InProcessEventBus *eventbus.InProcessEventBus

	// Auth
	OAuthService *identityOAuth.Registry

	// Calendar
	ProviderRegistry *calendarApp.ProviderRegistry
	Calendar         calendarApp.Provider

	// Availability Query Handlers
	FindFreeSlotsHandler *availabilityQueries.FindFreeSlotsHandler

	// Reschedule Command Handlers
	RequestRescheduleHandler *rescheduleCommands.RequestRescheduleHandler
	SelectCandidateHandler   *rescheduleCommands.SelectCandidateHandler
	CancelSessionHandler     *rescheduleCommands.CancelSessionHandler
	SweepSessionsHandler     *rescheduleCommands.SweepSessionsHandler

	// Reschedule Query Handlers
	GetSessionHandler   *rescheduleQueries.GetSessionHandler
	ListAttemptsHandler *rescheduleQueries.ListAttemptsHandler

	// Background services
	Sweeper         *rescheduleServices.Sweeper
	OutboxProcessor *outbox.Processor
	SessionActivity *rescheduleSubs.SessionActivitySubscriber
}

// NewContainer creates and wires all dependencies. Without a database URL it
// runs against the local SQLite file and an in-process event bus.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", cfg.UserID, err)
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		UserID: userID,
		Health: observability.NewHealthRegistry(),
	}
	c.Prometheus = observability.NewPrometheusMetrics(prometheus.NewRegistry())
	c.Metrics = c.Prometheus

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initRepositories(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPublisher(); err != nil {
		c.Close()
		return nil, err
	}
	c.initAuth()
	if err := c.initCalendar(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initHandlers()

	logger.Info("container initialized",
		"driver", c.DBDriver,
		"redis", c.RedisClient != nil,
		"calendar_provider", cfg.CalendarProvider,
		"local_mode", cfg.LocalMode(),
	)
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbCfg := database.Config{
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	}
	if c.Config.LocalMode() {
		dbCfg.Driver = database.DriverSQLite
		if dbCfg.SQLitePath == "" {
			dbCfg.SQLitePath = database.DefaultSQLitePath()
		}
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))
	c.Logger.Info("connected to database", "driver", c.DBDriver)
	return nil
}

// initRedis connects to Redis when configured. Outside production an
// unreachable Redis falls back to the in-memory session store.
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if c.Config.IsProduction() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, sessions will be kept in memory", "error", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		if c.Config.IsProduction() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, sessions will be kept in memory", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initRepositories() error {
	factory := NewRepositoryFactory(c.DBConn)

	var err error
	if c.AttemptRepo, err = factory.AttemptRepository(); err != nil {
		return fmt.Errorf("failed to create attempt repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return fmt.Errorf("failed to create outbox repository: %w", err)
	}
	if c.TokenRepo, err = factory.OAuthTokenRepository(); err != nil {
		return fmt.Errorf("failed to create token repository: %w", err)
	}
	c.UnitOfWork = factory.UnitOfWork()

	storeOpts := reschedulePersistence.StoreOptions{
		Retention: c.Config.SessionRetention,
		Logger:    c.Logger,
	}
	if c.RedisClient != nil {
		c.SessionStore = reschedulePersistence.NewRedisSessionStore(c.RedisClient, reschedulePersistence.RedisStoreOptions{
			StoreOptions: storeOpts,
			Prefix:       c.Config.RedisKeyPrefix + "reschedule",
			LockTTL:      2 * c.Config.ProviderCallTimeout,
		})
	} else {
		c.SessionStore = reschedulePersistence.NewMemorySessionStore(storeOpts)
	}
	return nil
}

// initPublisher picks the outbox relay target: RabbitMQ when configured,
// otherwise the in-process bus feeding the session activity subscriber.
func (c *Container) initPublisher() error {
	activity, err := rescheduleSubs.NewSessionActivitySubscriber(rescheduleSubs.DefaultTrackedSessions, c.Metrics, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create session activity subscriber: %w", err)
	}
	c.SessionActivity = activity
	c.InProcessEventBus = eventbus.NewInProcessEventBus(c.Logger)
	c.InProcessEventBus.RegisterConsumer(activity)

	if c.Config.RabbitMQURL == "" {
		c.EventPublisher = c.InProcessEventBus
	} else {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, eventbus.DefaultExchange, c.Logger)
		switch {
		case err == nil:
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Ping))
		case c.Config.IsProduction():
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		default:
			// Fall back to the in-process bus in development
			c.Logger.Warn("RabbitMQ not available, relaying events in process", "error", err)
			c.EventPublisher = c.InProcessEventBus
		}
	}

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     c.Config.OutboxPollInterval,
		BatchSize:        c.Config.OutboxBatchSize,
		MaxRetries:       c.Config.OutboxMaxRetries,
		RetryBackoffBase: outbox.DefaultProcessorConfig().RetryBackoffBase,
		RetryBackoffMax:  outbox.DefaultProcessorConfig().RetryBackoffMax,
	}, c.Logger).WithMetrics(c.Metrics)
	return nil
}

// initAuth registers an OAuth service per provider with client credentials.
// Token storage needs the encryption key; without it OAuth stays disabled.
func (c *Container) initAuth() {
	c.OAuthService = identityOAuth.NewRegistry()
	if c.Config.EncryptionKey == "" {
		c.Logger.Debug("encryption key not set, oauth providers disabled")
		return
	}
	encrypter, err := sharedCrypto.NewAESGCMFromBase64Key(c.Config.EncryptionKey)
	if err != nil {
		c.Logger.Warn("auth encryption not configured", "error", err)
		return
	}

	clients := []struct {
		provider calendarDomain.ProviderType
		id       string
		secret   string
		scopes   []string
	}{
		{calendarDomain.ProviderGoogle, c.Config.GoogleClientID, c.Config.GoogleClientSecret, scopesOr(c.Config.GoogleScopes, googleCal.DefaultScopes)},
		{calendarDomain.ProviderMicrosoft, c.Config.MicrosoftClientID, c.Config.MicrosoftClientSecret, scopesOr(c.Config.MicrosoftScopes, microsoftCal.DefaultScopes)},
	}
	for _, client := range clients {
		if client.id == "" || client.secret == "" {
			continue
		}
		endpoint, err := identityOAuth.EndpointFor(client.provider)
		if err != nil {
			c.Logger.Warn("no oauth endpoint", "provider", client.provider, "error", err)
			continue
		}
		service, err := identityOAuth.NewService(identityOAuth.Config{
			Provider:     string(client.provider),
			ClientID:     client.id,
			ClientSecret: client.secret,
			Endpoint:     endpoint,
			RedirectURL:  c.Config.OAuthRedirectURL,
			Scopes:       client.scopes,
		}, c.TokenRepo, encrypter, c.Logger)
		if err != nil {
			c.Logger.Warn("failed to initialize auth service", "provider", client.provider, "error", err)
			continue
		}
		c.OAuthService.Register(client.provider, service)
		c.Logger.Debug("oauth provider configured", "provider", client.provider)
	}
}

func scopesOr(raw string, defaults []string) []string {
	if scopes := identityOAuth.ParseScopes(raw); len(scopes) > 0 {
		return scopes
	}
	return defaults
}

func (c *Container) providerConfig() (calendarSetup.ProviderConfig, error) {
	cfg := c.Config
	httpClient := &http.Client{Timeout: cfg.ProviderCallTimeout}
	fetcher, err := ics.NewFetcher(httpClient, cfg.ICSCacheSize, c.Logger)
	if err != nil {
		return calendarSetup.ProviderConfig{}, fmt.Errorf("failed to create feed fetcher: %w", err)
	}

	feeds := make([]ics.Feed, 0, len(cfg.ICSFeeds))
	for _, f := range cfg.ICSFeeds {
		feeds = append(feeds, ics.Feed{Name: f.Name, URL: f.URL, Attendee: f.Attendee})
	}

	breaker := resilience.DefaultBreakerConfig()
	if cfg.BreakerFailures > 0 {
		breaker.FailureThreshold = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		breaker.Timeout = cfg.BreakerTimeout
	}

	providerConfig := calendarSetup.ProviderConfig{
		CalDAV: calendarSetup.CalDAVConfig{
			URL:          cfg.CalDAVURL,
			Username:     cfg.CalDAVUsername,
			Password:     cfg.CalDAVPassword,
			CalendarPath: cfg.CalDAVCalendarPath,
			Attendees:    cfg.CalDAVAttendees,
		},
		CalendarID:  cfg.CalendarID,
		SendUpdates: cfg.CalendarSendUpdates,
		Feeds:       feeds,
		Fetcher:     fetcher,
		HTTPClient:  httpClient,
		Breaker:     breaker,
		Metrics:     c.Metrics,
		Logger:      c.Logger,
	}
	if svc := c.OAuthService.Service(calendarDomain.ProviderGoogle); svc != nil {
		providerConfig.GoogleOAuth = svc
	}
	if svc := c.OAuthService.Service(calendarDomain.ProviderMicrosoft); svc != nil {
		providerConfig.MicrosoftOAuth = svc
	}
	return providerConfig, nil
}

// initCalendar resolves the configured provider. A provider that cannot be
// built yet (no OAuth client, no CalDAV account) is replaced by one that
// fails every call, so auth commands still work.
func (c *Container) initCalendar(ctx context.Context) error {
	providerConfig, err := c.providerConfig()
	if err != nil {
		return err
	}
	c.ProviderRegistry = calendarApp.NewProviderRegistry()
	calendarSetup.RegisterProviders(c.ProviderRegistry, providerConfig)

	providerType := calendarDomain.ProviderType(c.Config.CalendarProvider)
	provider, err := calendarSetup.Resolve(ctx, c.ProviderRegistry, providerType, providerConfig)
	if err != nil {
		c.Logger.Warn("calendar provider unavailable", "provider", providerType, "error", err)
		provider = unavailableProvider{err: err}
	}
	c.Calendar = provider
	return nil
}

func (c *Container) initHandlers() {
	cfg := c.Config
	deps := rescheduleCommands.Deps{
		Store:    c.SessionStore,
		Attempts: c.AttemptRepo,
		Outbox:   c.OutboxRepo,
		UoW:      c.UnitOfWork,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	}
	config := rescheduleCommands.Config{
		CandidateLimit:  cfg.CandidateLimit,
		SessionTTL:      cfg.SessionTTL,
		MinSlotDuration: cfg.MinSlotDuration,
	}

	c.FindFreeSlotsHandler = availabilityQueries.NewFindFreeSlotsHandler(c.Calendar, cfg.WindowDays, c.Metrics, c.Logger)
	c.RequestRescheduleHandler = rescheduleCommands.NewRequestRescheduleHandler(c.Calendar, c.FindFreeSlotsHandler, config, deps)
	c.SelectCandidateHandler = rescheduleCommands.NewSelectCandidateHandler(c.Calendar, deps)
	c.CancelSessionHandler = rescheduleCommands.NewCancelSessionHandler(deps)
	c.SweepSessionsHandler = rescheduleCommands.NewSweepSessionsHandler(deps)

	c.GetSessionHandler = rescheduleQueries.NewGetSessionHandler(c.SessionStore)
	c.ListAttemptsHandler = rescheduleQueries.NewListAttemptsHandler(c.AttemptRepo)

	c.Sweeper = rescheduleServices.NewSweeper(c.SweepSessionsHandler, rescheduleServices.SweeperConfig{
		Interval: cfg.SweepInterval,
		Metrics:  c.Metrics,
	}, c.Logger)
}

// Close releases all resources held by the container.
func (c *Container) Close() {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
	}
	if c.DBConn != nil {
		c.DBConn.Close()
	}
}

// unavailableProvider stands in for a calendar provider that could not be
// resolved and reports why on every call.
type unavailableProvider struct {
	err error
}

func (p unavailableProvider) BusyIntervals(context.Context, uuid.UUID, string, availability.SearchWindow) ([]availability.Interval, error) {
	return nil, p.err
}

func (p unavailableProvider) UpdateEventTime(context.Context, uuid.UUID, string, availability.Interval) error {
	return p.err
}

func (p unavailableProvider) GetEvent(context.Context, uuid.UUID, string) (*calendarDomain.Event, error) {
	return nil, p.err
}
