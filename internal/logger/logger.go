// Package logger provides a per-component leveled logger used throughout
// the core. It wraps logrus the way the rest of the corpus's services do,
// rather than hand-rolling a log.Printf shim.
package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

func rootLogger() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// SetLevel adjusts the global log level, e.g. from a -debug flag.
func SetLevel(debug bool) {
	if debug {
		rootLogger().SetLevel(logrus.DebugLevel)
	} else {
		rootLogger().SetLevel(logrus.InfoLevel)
	}
}

// Logger is a named logger for one component, e.g. "share" or "hub <- adc.dchub.net".
type Logger struct {
	entry *logrus.Entry
}

// New returns a logger tagged with the given component name.
func New(name string) Logger {
	return Logger{entry: rootLogger().WithField("component", name)}
}

func (l Logger) Debugln(args ...interface{}) { l.entry.Debugln(args...) }
func (l Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l Logger) Infoln(args ...interface{})  { l.entry.Infoln(args...) }
func (l Logger) Info(args ...interface{})    { l.entry.Info(args...) }
func (l Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l Logger) Warningln(args ...interface{}) { l.entry.Warningln(args...) }
func (l Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l Logger) Errorln(args ...interface{}) { l.entry.Errorln(args...) }
func (l Logger) Error(args ...interface{})   { l.entry.Error(args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// With returns a child logger with an additional field, e.g. a bundle token.
func (l Logger) With(key string, value interface{}) Logger {
	return Logger{entry: l.entry.WithField(key, value)}
}
