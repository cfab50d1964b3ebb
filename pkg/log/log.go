package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// Logger is the process-wide root logger. Init replaces it; every With*
// helper derives a child from it. The zero value discards everything, so
// library code can log unconditionally even when the embedding binary
// never calls Init.
var Logger zerolog.Logger

// Level names a verbosity threshold.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config selects the root logger's threshold, format and destination.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global Logger. An unknown Level falls back to info
// and a nil Output means stderr, so the zero Config is usable as-is. The
// console format is for interactive use; JSON for anything scraped.
func Init(cfg Config) {
	lvl, ok := levels[cfg.Level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

// WithComponent creates a child logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPod creates a child logger with a pod_uri field
func WithPod(uri string) zerolog.Logger {
	return Logger.With().Str("pod_uri", uri).Logger()
}

// WithSeries creates a child logger with a series field
func WithSeries(series string) zerolog.Logger {
	return Logger.With().Str("series", series).Logger()
}

// WithCollection creates a child logger with a collection field
func WithCollection(collection string) zerolog.Logger {
	return Logger.With().Str("collection", collection).Logger()
}

// WithDigest creates a child logger with a digest field (hex-rendered)
func WithDigest(digest string) zerolog.Logger {
	return Logger.With().Str("digest", digest).Logger()
}

// WithRevision creates a child logger with a revision key field
func WithRevision(revision string) zerolog.Logger {
	return Logger.With().Str("revision", revision).Logger()
}

// Fail logs err against logger at error level, tagging the event with the
// lakotaerrs.Kind it wraps (if any) so log aggregation can group failures by
// error taxonomy rather than by free-text message. Errors that don't wrap a
// known Kind (a bug, a context cancellation) are still logged, just without
// the field.
func Fail(logger zerolog.Logger, err error, msg string) {
	ev := logger.Error().Err(err)
	if kind, ok := lakotaerrs.Of(err); ok {
		ev = ev.Str("kind", string(kind))
	}
	ev.Msg(msg)
}
