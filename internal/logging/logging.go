// Package logging builds the structured logrus logger shared across the
// transport pools, the session manager, and the client facade.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Options configures the root logger (SPEC_FULL.md §6 logging fields).
type Options struct {
	Level string // "trace", "debug", "info", "warn", "error"; default "info"
	JSON  bool
}

// New builds a *logrus.Logger per opts. An unrecognized Level falls back to
// InfoLevel rather than failing startup over a logging preference.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

type contextKey struct{}

// WithContext attaches entry to ctx so request-scoped fields (destination,
// protocol) survive a call chain without threading a logger parameter
// through every function signature.
func WithContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, entry)
}

// FromContext returns the logger attached by WithContext, or a disconnected
// entry on the standard logger if none was attached.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
