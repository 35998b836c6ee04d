// Package logging configures the process-wide slog logger and carries
// request and conversion ids through contexts into every log record.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level is a log severity.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format is a log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Empty
// means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat maps "json" and "text" to a Format. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText:
		return f, nil
	}
	return FormatJSON, fmt.Errorf("unknown log format %q", s)
}

var defaultLogger *slog.Logger

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// InitLogger installs a stderr logger.
func InitLogger(level Level, format Format) {
	Init(os.Stderr, level, format)
}

// Init installs a logger writing to w as the global and slog default.
func Init(w io.Writer, level Level, format Format) {
	defaultLogger = New(w, level, format)
	slog.SetDefault(defaultLogger)
}

// New builds a logger without installing it. Records logged with a
// context carry that context's ids.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}
	var h slog.Handler
	if format == FormatText {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	conversionIDKey
	articleIDKey
)

// ctxAttrs lists the context values copied onto records, in output order.
var ctxAttrs = []struct {
	key  ctxKey
	name string
}{
	{requestIDKey, "request_id"},
	{conversionIDKey, "conversion_id"},
	{articleIDKey, "article_id"},
}

// contextHandler adds context ids to each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, a := range ctxAttrs {
			if v, ok := ctx.Value(a.key).(string); ok && v != "" {
				r.AddAttrs(slog.String(a.name, v))
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func ctxString(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

// WithRequestID tags ctx with an HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id of ctx, or "".
func RequestID(ctx context.Context) string { return ctxString(ctx, requestIDKey) }

// WithConversionID tags ctx with the id of one article conversion.
func WithConversionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversionIDKey, id)
}

// ConversionID returns the conversion id of ctx, or "".
func ConversionID(ctx context.Context) string { return ctxString(ctx, conversionIDKey) }

// WithArticleID tags ctx with the archive-assigned article id.
func WithArticleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, articleIDKey, id)
}

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	defaultLogger.ErrorContext(ctx, msg, args...)
}

// ConversionStage records a conversion entering stage.
func ConversionStage(ctx context.Context, stage string, args ...any) {
	defaultLogger.InfoContext(ctx, "conversion_stage", append([]any{"stage", stage}, args...)...)
}

// ConversionError records a conversion that failed in stage.
func ConversionError(ctx context.Context, stage string, err error, args ...any) {
	defaultLogger.ErrorContext(ctx, "conversion_error", append([]any{"stage", stage, "error", err.Error()}, args...)...)
}

// WebSocketEvent records a progress-feed connection change.
func WebSocketEvent(event string, clientCount int, args ...any) {
	defaultLogger.Info("websocket_event", append([]any{"event", event, "client_count", clientCount}, args...)...)
}

// ServerStartup records a listener coming up.
func ServerStartup(serverType, protocol, addr string, args ...any) {
	defaultLogger.Info("server_startup", append([]any{"server_type", serverType, "protocol", protocol, "addr", addr}, args...)...)
}

// SecurityEvent records a rejected or suspicious request at warn level.
func SecurityEvent(event, component string, args ...any) {
	defaultLogger.Warn("security_event", append([]any{"event", event, "component", component}, args...)...)
}
