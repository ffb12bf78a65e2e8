package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kolkov/modguard/internal/guard/report"
)

type options struct {
	sink       report.Sink
	logger     *zap.Logger
	registerer prometheus.Registerer
	interval   time.Duration
}

// Option configures an Agent.
type Option func(*options)

// WithSink sends diagnostics to sink instead of the logger.
func WithSink(sink report.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer exports diagnostic and pipeline counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithWatchInterval overrides the watchdog period.
func WithWatchInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}
