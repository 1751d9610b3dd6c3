package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/ems-console/internal/infrastructure/config"
)

const serviceName = "ems-console"

// Logger is a *slog.Logger carrying the service and version attributes.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newWithWriter(w, cfg, version)
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// parseLevel accepts slog level names in any case plus "warning".
// Anything else is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Component tags every entry with component=name.
//
//	storeLog := log.Component("store")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before configuration is loaded: JSON on
// stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
