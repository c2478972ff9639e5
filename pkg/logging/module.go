package logging

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module reads the "logging" viper key and provides both *zap.Logger and
// Interface.
var Module fx.Option = fx.Provide(
	provideZapLogger,
	provideInterface,
)

// UseLoggingInterface routes fx's own events through the container's
// Interface at debug level, keeping CLI output quiet by default.
var UseLoggingInterface fx.Option = fx.WithLogger(
	func(logger Interface) fxevent.Logger {
		return fxLogger{logger.WithField("component", "fx")}
	},
)

func provideZapLogger(v *viper.Viper) (*zap.Logger, error) {
	config, err := NewConfig(WithViper(v), WithDebug(v.GetBool("debug")))
	if err != nil {
		return nil, fmt.Errorf("error reading logging configuration: %w", err)
	}
	return NewLogger(config)
}

func provideInterface(l *zap.Logger) Interface { return ForZap(l) }

type fxLogger struct{ Interface }

func (f fxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			f.WithError(e.Err).WithField("constructor", e.ConstructorName).Error("fx provide failed")
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			f.WithError(e.Err).WithField("function", e.FunctionName).Error("fx invoke failed")
		}
	case *fxevent.Started:
		if e.Err != nil {
			f.WithError(e.Err).Error("fx start failed")
			return
		}
		f.Debug("fx app started")
	case *fxevent.Stopped:
		if e.Err != nil {
			f.WithError(e.Err).Error("fx stop failed")
		}
	default:
		f.WithField("event", fmt.Sprintf("%T", event)).Debug("fx event")
	}
}
