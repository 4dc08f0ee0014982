// Package logging provides the narrow structured-logging surface the memory
// store core depends on. Higher layers own the actual sink; the core only
// ever sees this interface.
package logging

import "github.com/sirupsen/logrus"

// Fields is a shorthand for structured log attributes.
type Fields map[string]interface{}

// Logger is the only logging capability the memory store core consumes.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
}

// logrusLogger adapts *logrus.Logger to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps an existing *logrus.Logger. A nil logger falls back
// to one with output discarded at FatalLevel, so callers that skip wiring a
// logger in tests don't need a separate nil check everywhere.
func NewLogrusLogger(base *logrus.Logger, component string) Logger {
	if base == nil {
		base = logrus.New()
		base.SetLevel(logrus.FatalLevel)
	}
	return &logrusLogger{entry: base.WithField("component", component)}
}

func (l *logrusLogger) Debug(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, err error, fields Fields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

// noopLogger discards everything. Useful as a zero-value-friendly default
// for callers that construct a store without wiring a logger.
type noopLogger struct{}

// NewNoop returns a Logger that discards all entries.
func NewNoop() Logger { return noopLogger{} }

func (noopLogger) Debug(string, Fields)        {}
func (noopLogger) Info(string, Fields)         {}
func (noopLogger) Warn(string, Fields)         {}
func (noopLogger) Error(string, error, Fields) {}
