package promptops

import (
	"github.com/sirupsen/logrus"
)

// Logger is the minimal structured logging interface used throughout the
// client. Key-value pairs alternate in keysAndValues.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger discards everything. Used when no logger is configured so call
// sites never need a nil check.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// logrusLogger adapts a *logrus.Logger to the Logger interface.
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger wraps an existing logrus logger. Pass nil to get a logger
// with logrus defaults (text formatter, info level, stderr).
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
	}
	return &logrusLogger{l: l}
}

func (a *logrusLogger) Debug(msg string, kv ...interface{}) { a.entry(kv).Debug(msg) }
func (a *logrusLogger) Info(msg string, kv ...interface{})  { a.entry(kv).Info(msg) }
func (a *logrusLogger) Warn(msg string, kv ...interface{})  { a.entry(kv).Warn(msg) }
func (a *logrusLogger) Error(msg string, kv ...interface{}) { a.entry(kv).Error(msg) }

func (a *logrusLogger) entry(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return a.l.WithFields(fields)
}
