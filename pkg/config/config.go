package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/security"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUserID is the single local user when RESLOT_USER_ID is unset.
const DefaultUserID = "00000000-0000-0000-0000-000000000001"

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv        string
	LogLevel      string
	UserID        string
	EncryptionKey string
	ConfigFile    string

	// Database. An empty URL selects the local SQLite file.
	DatabaseURL string
	SQLitePath  string

	// Redis. Empty keeps sessions in process memory.
	RedisURL       string
	RedisKeyPrefix string

	// RabbitMQ. Empty relays outbox events in process.
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string
	APIAddr          string
	APIEnabled       bool

	// Reschedule
	CandidateLimit   int
	WindowDays       int
	SessionTTL       time.Duration
	SessionRetention time.Duration
	MinSlotDuration  time.Duration
	SweepInterval    time.Duration

	// Calendar
	CalendarProvider    string
	CalendarID          string
	CalendarSendUpdates string
	ICSFeeds            []FeedConfig
	ICSCacheSize        int
	CalDAVURL           string
	CalDAVUsername      string
	CalDAVPassword      string
	CalDAVCalendarPath  string
	CalDAVAttendees     map[string]string
	BreakerFailures     uint32
	BreakerTimeout      time.Duration
	ProviderCallTimeout time.Duration

	// OAuth
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleScopes          string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftScopes       string
	OAuthRedirectURL      string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// FeedConfig declares an iCalendar feed. An empty Attendee means the feed
// describes the user's own calendar.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Attendee string `yaml:"attendee"`
}

// fileConfig is the optional YAML overlay. Unset fields keep the
// environment values.
type fileConfig struct {
	Reschedule struct {
		CandidateLimit   *int           `yaml:"candidate_limit"`
		WindowDays       *int           `yaml:"window_days"`
		SessionTTL       *time.Duration `yaml:"session_ttl"`
		SessionRetention *time.Duration `yaml:"session_retention"`
		MinSlotDuration  *time.Duration `yaml:"min_slot_duration"`
		SweepInterval    *time.Duration `yaml:"sweep_interval"`
	} `yaml:"reschedule"`
	Calendar struct {
		Provider    string       `yaml:"provider"`
		CalendarID  string       `yaml:"calendar_id"`
		SendUpdates string       `yaml:"send_updates"`
		Feeds       []FeedConfig `yaml:"ics_feeds"`
		CalDAV      struct {
			URL          string            `yaml:"url"`
			Username     string            `yaml:"username"`
			CalendarPath string            `yaml:"calendar_path"`
			Attendees    map[string]string `yaml:"attendees"`
		} `yaml:"caldav"`
	} `yaml:"calendar"`
}

// Load loads configuration from .env, the environment and the optional YAML
// file named by RESLOT_CONFIG, in that order of increasing precedence.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:        getEnv("RESLOT_ENV", "development"),
		LogLevel:      getEnv("RESLOT_LOG_LEVEL", "info"),
		UserID:        getEnv("RESLOT_USER_ID", DefaultUserID),
		EncryptionKey: getEnv("RESLOT_ENCRYPTION_KEY", ""),
		ConfigFile:    getEnv("RESLOT_CONFIG", ""),

		DatabaseURL:    getEnv("RESLOT_DATABASE_URL", ""),
		SQLitePath:     getEnv("RESLOT_SQLITE_PATH", ""),
		RedisURL:       getEnv("RESLOT_REDIS_URL", ""),
		RedisKeyPrefix: getEnv("RESLOT_REDIS_PREFIX", "reslot:"),
		RabbitMQURL:    getEnv("RESLOT_RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("RESLOT_OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("RESLOT_OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("RESLOT_OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("RESLOT_OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("RESLOT_OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("RESLOT_OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("RESLOT_OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("RESLOT_WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		APIAddr:          getEnv("RESLOT_API_ADDR", "0.0.0.0:8080"),
		APIEnabled:       getBoolEnv("RESLOT_API_ENABLED", true),

		CandidateLimit:   getIntEnv("RESLOT_CANDIDATE_LIMIT", 3),
		WindowDays:       getIntEnv("RESLOT_WINDOW_DAYS", 14),
		SessionTTL:       getDurationEnv("RESLOT_SESSION_TTL", 5*time.Minute),
		SessionRetention: getDurationEnv("RESLOT_SESSION_RETENTION", time.Hour),
		MinSlotDuration:  getDurationEnv("RESLOT_MIN_SLOT_DURATION", 0),
		SweepInterval:    getDurationEnv("RESLOT_SWEEP_INTERVAL", 30*time.Second),

		CalendarProvider:    getEnv("RESLOT_CALENDAR_PROVIDER", string(calendarDomain.ProviderGoogle)),
		CalendarID:          getEnv("RESLOT_CALENDAR_ID", "primary"),
		CalendarSendUpdates: getEnv("RESLOT_CALENDAR_SEND_UPDATES", "all"),
		ICSFeeds:            getFeedsEnv("RESLOT_ICS_FEEDS"),
		ICSCacheSize:        getIntEnv("RESLOT_ICS_CACHE_SIZE", 64),
		CalDAVURL:           getEnv("RESLOT_CALDAV_URL", ""),
		CalDAVUsername:      getEnv("RESLOT_CALDAV_USERNAME", ""),
		CalDAVPassword:      getEnv("RESLOT_CALDAV_PASSWORD", ""),
		CalDAVCalendarPath:  getEnv("RESLOT_CALDAV_CALENDAR_PATH", ""),
		CalDAVAttendees:     map[string]string{},
		BreakerFailures:     uint32(getIntEnv("RESLOT_BREAKER_FAILURES", 5)),
		BreakerTimeout:      getDurationEnv("RESLOT_BREAKER_TIMEOUT", 30*time.Second),
		ProviderCallTimeout: getDurationEnv("RESLOT_PROVIDER_TIMEOUT", 15*time.Second),

		GoogleClientID:        getEnv("RESLOT_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("RESLOT_GOOGLE_CLIENT_SECRET", ""),
		GoogleScopes:          getEnv("RESLOT_GOOGLE_SCOPES", ""),
		MicrosoftClientID:     getEnv("RESLOT_MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("RESLOT_MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftScopes:       getEnv("RESLOT_MICROSOFT_SCOPES", ""),
		OAuthRedirectURL:      getEnv("RESLOT_OAUTH_REDIRECT_URL", "urn:ietf:wg:oauth:2.0:oob"),

		MCPAddr:      getEnv("RESLOT_MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("RESLOT_MCP_AUTH_TOKEN", ""),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := security.SafeReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	r := file.Reschedule
	setIfPresent(&c.CandidateLimit, r.CandidateLimit)
	setIfPresent(&c.WindowDays, r.WindowDays)
	setIfPresent(&c.SessionTTL, r.SessionTTL)
	setIfPresent(&c.SessionRetention, r.SessionRetention)
	setIfPresent(&c.MinSlotDuration, r.MinSlotDuration)
	setIfPresent(&c.SweepInterval, r.SweepInterval)

	cal := file.Calendar
	setIfNotEmpty(&c.CalendarProvider, cal.Provider)
	setIfNotEmpty(&c.CalendarID, cal.CalendarID)
	setIfNotEmpty(&c.CalendarSendUpdates, cal.SendUpdates)
	c.ICSFeeds = append(c.ICSFeeds, cal.Feeds...)
	setIfNotEmpty(&c.CalDAVURL, cal.CalDAV.URL)
	setIfNotEmpty(&c.CalDAVUsername, cal.CalDAV.Username)
	setIfNotEmpty(&c.CalDAVCalendarPath, cal.CalDAV.CalendarPath)
	for address, path := range cal.CalDAV.Attendees {
		c.CalDAVAttendees[address] = path
	}
	return nil
}

// Validate reports settings the engine cannot run with. It normalizes the
// calendar provider name.
func (c *Config) Validate() error {
	var errs []error
	if c.CandidateLimit < 1 {
		errs = append(errs, fmt.Errorf("candidate limit must be at least 1, got %d", c.CandidateLimit))
	}
	if c.WindowDays < 1 {
		errs = append(errs, fmt.Errorf("window days must be at least 1, got %d", c.WindowDays))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL))
	}
	if c.SessionRetention < 0 {
		errs = append(errs, fmt.Errorf("session retention must not be negative, got %s", c.SessionRetention))
	}
	if c.MinSlotDuration < 0 {
		errs = append(errs, fmt.Errorf("min slot duration must not be negative, got %s", c.MinSlotDuration))
	}
	if provider, err := calendarDomain.ParseProviderType(c.CalendarProvider); err != nil {
		errs = append(errs, err)
	} else {
		c.CalendarProvider = provider.String()
	}
	for i, feed := range c.ICSFeeds {
		if feed.URL == "" {
			errs = append(errs, fmt.Errorf("ics feed %d has no url", i))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LocalMode reports whether no server database is configured.
func (c *Config) LocalMode() bool {
	return c.DatabaseURL == ""
}

func setIfPresent[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getFeedsEnv parses "url" or "attendee=url" entries separated by commas.
func getFeedsEnv(key string) []FeedConfig {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var feeds []FeedConfig
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		feed := FeedConfig{URL: entry}
		if attendee, url, ok := strings.Cut(entry, "="); ok && !strings.Contains(attendee, "://") {
			feed = FeedConfig{Attendee: strings.TrimSpace(attendee), URL: strings.TrimSpace(url)}
		}
		feeds = append(feeds, feed)
	}
	return feeds
}
