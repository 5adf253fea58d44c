package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level   string // "debug", "info", "warn", "error"
	Format  string // "json" or "text"
	Output  io.Writer
	Service ServiceInfo
}

// payloadKeys are matched case-insensitively against a whole attribute key
// or its last "_" segment, so "message_data" is redacted but "metadata" is not.
var payloadKeys = []string{
	"payload",
	"data",
}

// sensitivePatterns are matched case-insensitively anywhere in attribute keys.
var sensitivePatterns = []string{
	"_token",
	"_secret",
	"password",
	"authorization",
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// InitLogger creates the process logger with payload redaction and installs
// it via slog.SetDefault. Output defaults to stdout.
func InitLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: redactSensitive,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("environment", cfg.Service.Environment),
		slog.String("instance_id", cfg.Service.InstanceID),
	)

	slog.SetDefault(logger)
	return logger
}

// NewRedactingHandler creates a JSON handler that redacts sensitive fields,
// for callers composing their own logger (tests, tools).
func NewRedactingHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	originalReplace := opts.ReplaceAttr
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if originalReplace != nil {
			a = originalReplace(groups, a)
		}
		return redactSensitive(groups, a)
	}

	return slog.NewJSONHandler(w, opts)
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	keyLower := strings.ToLower(a.Key)
	for _, key := range payloadKeys {
		if keyLower == key || strings.HasSuffix(keyLower, "_"+key) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	for _, pattern := range sensitivePatterns {
		if strings.Contains(keyLower, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// LoggerFromContext returns the default logger, tagged with the trace ID if
// ctx carries an active span.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return WithTraceID(ctx, slog.Default())
}

// WithTraceID tags logger with the trace ID carried by ctx, if any.
func WithTraceID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
