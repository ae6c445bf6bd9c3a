package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger so call sites read the same way the teacher's
// observability.NewLogger(component) did, while giving us a typed handle
// to bind correlation fields onto.
type Logger struct {
	*slog.Logger
}

var defaultLogger = NewLogger("app")

// NewLogger builds a component-scoped structured logger with a
// human-readable text handler at Info level.
func NewLogger(component string) *Logger {
	return NewLoggerWithOptions(component, false, false)
}

// NewLoggerWithOptions builds a component-scoped structured logger.
// consoleJSON selects the JSON handler (LOG_CONSOLE_JSON=true); otherwise a
// human-readable text handler is used. debug lowers the level to Debug.
func NewLoggerWithOptions(component string, consoleJSON bool, debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if consoleJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler).With("component", component)}
}

// WithToken returns a derived logger carrying the job correlation field
// every log record for that job's dispatch must include.
func (l *Logger) WithToken(token string) *Logger {
	return &Logger{Logger: l.Logger.With("token", token)}
}

// LogError emits one error-level record carrying the structured error
// fields required by the error handling design: event, error_code,
// error_message.
func (l *Logger) LogError(ctx context.Context, event string, code string, message string) {
	l.Logger.ErrorContext(ctx, event, "event", event, "error_code", code, "error_message", message)
}
