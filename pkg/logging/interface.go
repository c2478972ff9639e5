package logging

import (
	"fmt"
)

// Interface decouples storage code from the concrete logging library.
// Production wiring backs it with zap, tests usually back it with logrus
// or the no-op logger.
type Interface interface {
	WithField(key string, value interface{}) Interface
	WithError(err error) Interface

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	// Prefer WithField over the printf variants.
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// WithFields attaches every entry of fields to logger, in no particular order.
func WithFields(logger Interface, fields map[string]interface{}) Interface {
	for k, v := range fields {
		logger = logger.WithField(k, v)
	}
	return logger
}

func fmtMsg(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
