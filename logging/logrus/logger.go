// Package logrus adapts a logrus logger to core.Logger.
package logrus

import (
	"github.com/Swind/go-async-runner/core"
	"github.com/sirupsen/logrus"
)

// Logger forwards core.Logger calls to a logrus.FieldLogger.
type Logger struct {
	entry logrus.FieldLogger
}

var _ core.Logger = (*Logger)(nil)

// New wraps l. A nil l uses logrus.StandardLogger().
func New(l logrus.FieldLogger) *Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logger{entry: l}
}

// WithComponent returns a Logger that tags every entry with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{entry: l.entry.WithField("component", component)}
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.with(fields).Debug(msg) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.with(fields).Info(msg) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.with(fields).Warn(msg) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.with(fields).Error(msg) }

func (l *Logger) with(fields []core.Field) logrus.FieldLogger {
	if len(fields) == 0 {
		return l.entry
	}
	lf := make(logrus.Fields, len(fields))
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	return l.entry.WithFields(lf)
}
