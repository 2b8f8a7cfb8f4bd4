package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/clog"
)

// Format selects the log encoding
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type ctxLoggerKey struct{}

var fallback atomic.Pointer[slog.Logger]

func init() {
	fallback.Store(New("info", os.Stdout))
}

type config struct {
	format Format
	source bool
}

type Option func(*config)

// WithFormat sets the output format. Unknown formats fall back to console.
func WithFormat(format Format) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithSource adds the caller location to every record
func WithSource(enabled bool) Option {
	return func(c *config) {
		c.source = enabled
	}
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a case-insensitive level name to slog.Level. The second
// return value is false for unknown names, in which case info is returned.
func ParseLevel(name string) (slog.Level, bool) {
	lv, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return slog.LevelInfo, false
	}
	return lv, true
}

// New builds a logger writing to w (stdout when nil) at the named level.
func New(level string, w io.Writer, opts ...Option) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	cfg := config{format: FormatConsole}
	for _, opt := range opts {
		opt(&cfg)
	}

	lv, known := ParseLevel(level)

	var handler slog.Handler
	switch cfg.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv, AddSource: cfg.source})
	default:
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(lv),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(cfg.source),
			clog.WithAttrHook(clog.GoerrHook),
		)
	}

	logger := slog.New(handler)
	if !known {
		logger.Warn("unknown log level, using info", slog.String("level", level))
	}
	return logger
}

func Default() *slog.Logger {
	return fallback.Load()
}

// SetDefault replaces the logger returned by From when the context carries none
func SetDefault(logger *slog.Logger) {
	if logger != nil {
		fallback.Store(logger)
	}
}

func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the request-scoped logger, or Default
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// ErrAttr wraps err as a slog attribute under the "error" key
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}
