package wheel

import (
	"time"
)

// default is a ~102s wheel: 1024 slots advanced every 100ms.
const (
	defaultWheelSize    = 1024
	defaultTickDuration = 100 * time.Millisecond
)

// Options is common options.
type Options struct {
	Logger       Logger
	WheelSize    int
	TickDuration time.Duration
}

// NewOptions creates options with defaults.
func NewOptions(opts ...Option) Options {
	var options = Options{
		Logger:       defaultLogger,
		WheelSize:    defaultWheelSize,
		TickDuration: defaultTickDuration,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// Option is for setting options.
type Option func(*Options)

// WithLogger sets logger.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithWheelSize sets the slot count, must be greater than 0.
// If not, it will be ignored.
func WithWheelSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.WheelSize = n
		}
	}
}

// WithTickDuration sets tick duration, must be greater than 0.
// If not, it will be ignored.
func WithTickDuration(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TickDuration = d
		}
	}
}
