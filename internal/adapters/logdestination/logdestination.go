// Package logdestination delivers an exchange through the injected
// Logger capability, the same capability-injection idiom the core
// depends on for its own diagnostics. It is the reference sink used to
// observe a route's output without standing up a real external system.
package logdestination

import (
	"github.com/routecraftjs/routecraft"
)

// Level selects which Logger method a message is written through.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Options configures a log destination.
type Options struct {
	// Level selects the Logger method used for each message. Default:
	// LevelInfo.
	Level Level
	// Message is the static log message. Default: "exchange".
	Message string
}

// New returns a routecraft.Destination that writes ex.Body and
// ex.Headers through logger at opts.Level.
func New(logger routecraft.Logger, opts Options) routecraft.Destination {
	if logger == nil {
		logger = routecraft.NewDiscardLogger()
	}
	msg := opts.Message
	if msg == "" {
		msg = "exchange"
	}

	return routecraft.DestinationFunc(func(ex *routecraft.Exchange) error {
		args := []any{
			"body", ex.Body,
			"correlation_id", ex.CorrelationID(),
		}
		for k, v := range ex.Headers {
			args = append(args, k, v)
		}

		switch opts.Level {
		case LevelDebug:
			logger.Debug(msg, args...)
		case LevelWarn:
			logger.Warn(msg, args...)
		case LevelError:
			logger.Error(msg, args...)
		default:
			logger.Info(msg, args...)
		}
		return nil
	})
}
