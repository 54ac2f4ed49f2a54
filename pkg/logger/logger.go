package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Leveled logger shared by the whole service.
// - Debug/Info/Warn/Error/Fatal printf variants and Init(level)
// - With returns a structured *slog.Logger for components that carry fields

// LevelFatal sits above slog.LevelError; Fatalf always logs and exits.
const LevelFatal = slog.Level(12)

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar)
	base  = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	}))
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	case "fatal":
		level.Set(LevelFatal)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a logger that adds args to every record, e.g. With("component", "realtime").
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

func Debugf(format string, v ...interface{}) { current().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { current().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { current().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { current().Error(fmt.Sprintf(format, v...)) }

func Fatalf(format string, v ...interface{}) {
	l := current()
	l.Log(context.Background(), LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	switch lv := level.Level(); {
	case lv <= slog.LevelDebug:
		return "debug"
	case lv <= slog.LevelInfo:
		return "info"
	case lv <= slog.LevelWarn:
		return "warn"
	case lv <= slog.LevelError:
		return "error"
	default:
		return "fatal"
	}
}
