// Package logger is a thin slog wrapper that knows the request, batch and
// item identifiers carried through a caption run.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey stores the HTTP request id in a context.
	RequestIDKey contextKey = "request_id"
	// BatchIDKey stores the batch run id in a context.
	BatchIDKey contextKey = "batch_id"
)

// Logger embeds *slog.Logger so callers keep the slog method set.
type Logger struct {
	*slog.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output io.Writer
	// AddSource annotates records with file:line.
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	cfg := Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "postcraft",
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	cfg.AddSource = os.Getenv("LOG_SOURCE") == "true"
	return cfg
}

// New builds a Logger. Timestamps are always UTC.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

// NewDefault is New(DefaultConfig()).
func NewDefault() *Logger { return New(DefaultConfig()) }

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithRequestID(id string) *Logger { return l.with("request_id", id) }

func (l *Logger) WithBatchID(id string) *Logger { return l.with("batch_id", id) }

// WithItemID tags records with the item id and its position in the batch.
func (l *Logger) WithItemID(id string, position int) *Logger {
	return l.with("item_id", id, "position", position)
}

func (l *Logger) WithComponent(name string) *Logger { return l.with("component", name) }

// WithError returns l unchanged for a nil error.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// FromContext attaches whichever of the request and batch ids ctx carries.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id := stringValue(ctx, RequestIDKey); id != "" {
		out = out.WithRequestID(id)
	}
	if id := stringValue(ctx, BatchIDKey); id != "" {
		out = out.WithBatchID(id)
	}
	return out
}

func stringValue(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// LogError records err at error level together with the caller's position.
// A nil err is ignored.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", "file", file, "line", line))
	}
	l.FromContext(ctx).Error(msg, append(args, "error", err.Error())...)
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func ContextWithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BatchIDKey, id)
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel falls back to info for anything it does not recognise.
func parseLevel(s string) slog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return slog.LevelInfo
}
