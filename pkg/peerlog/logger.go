// Package peerlog defines the minimal leveled-logging interface the address
// book depends on, plus a zap-backed implementation.
package peerlog

import "go.uber.org/zap"

// Logger is the logging interface the book is injected with at construction.
// A nil Logger is valid everywhere in this module and silences logging.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// With returns a Logger that prefixes every subsequent line with the
	// given structured fields.
	With(args ...interface{}) Logger
}

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New wraps z as a Logger. Passing a nil z yields a valid no-op Logger.
func New(z *zap.Logger) Logger {
	if z == nil {
		return nil
	}
	return &zapLogger{sugar: z.Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *zapLogger) With(args ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(args...)}
}

// debugf/infof/warnf are nil-safe helpers so call sites never need a
// "if logger != nil" guard at every log line.
func debugf(l Logger, format string, args ...interface{}) {
	if l != nil {
		l.Debugf(format, args...)
	}
}

func infof(l Logger, format string, args ...interface{}) {
	if l != nil {
		l.Infof(format, args...)
	}
}

func warnf(l Logger, format string, args ...interface{}) {
	if l != nil {
		l.Warnf(format, args...)
	}
}

// Debugf logs at debug on l if l is non-nil.
func Debugf(l Logger, format string, args ...interface{}) { debugf(l, format, args...) }

// Infof logs at info on l if l is non-nil.
func Infof(l Logger, format string, args ...interface{}) { infof(l, format, args...) }

// Warnf logs at warn on l if l is non-nil.
func Warnf(l Logger, format string, args ...interface{}) { warnf(l, format, args...) }
