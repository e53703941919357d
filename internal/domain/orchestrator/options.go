package orchestrator

import (
	"time"

	"github.com/hibikido/hibikido/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithOverlapThreshold sets the collision threshold. Values outside (0, 1]
// are ignored in favor of the default.
func WithOverlapThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold > 0 && threshold <= 1 {
			o.overlapThreshold = threshold
		}
	}
}

// WithTickInterval sets the cadence the driver is expected to tick at.
func WithTickInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.tickInterval = interval
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides the enqueue timestamp source. Test seam.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}
