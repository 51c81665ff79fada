package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

const instrumentationName = "github.com/rocketscienceinc/tictactoe-program"

// MultiHandler dispatches every record to all of its handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (that *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range that.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle - a failing handler does not stop the others; their errors are joined.
func (that *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error

	for _, handler := range that.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}

		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (that *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(that.handlers))
	for i, handler := range that.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}

	return NewMultiHandler(handlers...)
}

func (that *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(that.handlers))
	for i, handler := range that.handlers {
		handlers[i] = handler.WithGroup(name)
	}

	return NewMultiHandler(handlers...)
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New - JSON logs on out; with a provider, records are also exported through OpenTelemetry.
func New(out io.Writer, level string, provider log.LoggerProvider) *slog.Logger {
	console := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)})
	if provider == nil {
		return slog.New(console)
	}

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	return slog.New(NewMultiHandler(console, otelHandler))
}
