package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a component attribute so every line can
// be traced back to the subsystem that emitted it.
type Logger struct {
	*slog.Logger
	component string
}

// New creates a logger writing text lines to w at the given level.
func New(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler), component: ComponentApp}
}

// Default returns an info-level logger on stdout and installs it as the
// process default.
func Default() *Logger {
	l := New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(l.Logger)
	return l
}

// WithComponent returns a logger scoped to the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(FieldComponent, component),
		component: component,
	}
}

// With returns a logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

// Component returns the logger's component name.
func (l *Logger) Component() string {
	return l.component
}
