// Package logging builds the zerolog logger used across the importer and
// carries it through contexts.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, format and destination.
type Config struct {
	Level  string
	Format string // auto, console or json
	Output io.Writer
}

var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New builds a logger from cfg and installs it as the default.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = out
	switch cfg.Format {
	case "json":
	case "console":
		writer = consoleWriter(out)
	default:
		if isTerminal(out) {
			writer = consoleWriter(out)
		}
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}

	defaultLogger = logger
	log.Logger = logger
	return logger
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger { return &defaultLogger }

// Discard replaces the default logger with a no-op one. Used by the TUI,
// which owns the terminal.
func Discard() {
	defaultLogger = zerolog.Nop()
	log.Logger = defaultLogger
}

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &logger)
}

// FromContext returns the logger stored in ctx, or the default.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}

// WithJob tags every event logged through ctx with the import job ID.
func WithJob(ctx context.Context, jobID string) context.Context {
	l := FromContext(ctx).With().Str("job_id", jobID).Logger()
	return WithLogger(ctx, l)
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
