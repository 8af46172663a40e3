// Package observability holds the logging, metrics, tracing and health
// plumbing shared by the reslot binaries.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level slog.Level
	// JSON selects the JSON handler; text otherwise.
	JSON      bool
	Output    io.Writer
	AddSource bool
	// Version is attached to every record as "version" when set.
	Version string
}

// NewLogger builds a logger whose records carry the service name and the
// correlation, request and trace ids found on the logging context.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	attrs := []slog.Attr{slog.String("service", "reslot")}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return slog.New(contextHandler{Handler: h.WithAttrs(attrs)})
}

// LoggerFromEnv reads RESLOT_LOG_LEVEL, RESLOT_LOG_FORMAT, RESLOT_ENV and
// RESLOT_VERSION. Production defaults to JSON on stdout with source lines.
func LoggerFromEnv() *slog.Logger {
	return NewLogger(logConfigFromEnv(os.Getenv))
}

func logConfigFromEnv(getenv func(string) string) LogConfig {
	cfg := LogConfig{Output: os.Stderr, Version: getenv("RESLOT_VERSION")}
	if getenv("RESLOT_ENV") == "production" {
		cfg = LogConfig{JSON: true, Output: os.Stdout, AddSource: true, Version: cfg.Version}
	}
	cfg.Level = ParseLevel(getenv("RESLOT_LOG_LEVEL"))
	switch strings.ToLower(getenv("RESLOT_LOG_FORMAT")) {
	case "json":
		cfg.JSON = true
	case "text":
		cfg.JSON = false
	}
	return cfg
}

// ParseLevel maps debug, warn and error (any case) to their slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies ids and attributes from the context onto each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := CorrelationIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id := TraceIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	r.AddAttrs(logAttrsFromContext(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
