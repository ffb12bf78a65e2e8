// Package agent is the public entry point of modguard.
//
// An Agent owns the process-wide runtime state shared by injected checks
// (owning-thread cell, constant-drift registry, diagnostic sink) and the
// instrumentation pipeline configured from six boolean flags. It is built
// once at process start and handed every module-load event.
//
// Usage:
//
//	a, err := agent.New(agent.DefaultConfig(), agent.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	out, err := a.Transform(ns, name, raw)
//	if err != nil {
//	    // abort the load
//	}
//	if out != nil {
//	    raw = out
//	}
//	a.Start(ctx, resolver) // constant-drift watchdog
package agent

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kolkov/modguard/internal/guard/affinity"
	"github.com/kolkov/modguard/internal/guard/drift"
	"github.com/kolkov/modguard/internal/guard/report"
	"github.com/kolkov/modguard/internal/host"
	"github.com/kolkov/modguard/internal/instrument"
	"github.com/kolkov/modguard/internal/resolve"
)

// ErrAlreadyStarted is returned by Start when the watchdog is running.
var ErrAlreadyStarted = errors.New("agent already started")

// Config selects the diagnostics to inject.
type Config struct {
	// Trace enables debug logging of every transformation.
	Trace bool `mapstructure:"trace"`

	// LeakUnreleased reports release-capable instances finalized without release.
	LeakUnreleased bool `mapstructure:"leak_unreleased"`

	// LeakDoubleRelease reports a second release of the same instance.
	LeakDoubleRelease bool `mapstructure:"leak_double_release"`

	// UnclosedTracking reports closeable instances finalized without close.
	// It does not depend on the other leak flags.
	UnclosedTracking bool `mapstructure:"unclosed_tracking"`

	// ConstantDrift watches shared "constant" static fields.
	ConstantDrift bool `mapstructure:"constant_drift"`

	// ThreadAffinity checks thread-affine operations against the owning thread.
	ThreadAffinity bool `mapstructure:"thread_affinity"`
}

// DefaultConfig returns the default flag set: everything on except trace
// logging and double-release tracking.
func DefaultConfig() Config {
	return Config{
		Trace:             false,
		LeakUnreleased:    true,
		LeakDoubleRelease: false,
		UnclosedTracking:  true,
		ConstantDrift:     true,
		ThreadAffinity:    true,
	}
}

// Runtime is the shared state the injected checks execute against.
// It is created once by New and never replaced.
type Runtime struct {
	Sink     report.Sink
	Affinity *affinity.Cell
	Registry *drift.Registry
}

// Agent transforms modules and runs the constant-drift watchdog.
type Agent struct {
	cfg      Config
	logger   *zap.Logger
	runtime  *Runtime
	pipeline *instrument.Pipeline
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

// New builds the runtime and the pipeline for cfg.
//
// Transformers run in a fixed order: constant-drift, thread-affinity,
// leak tracking for the release capability, leak tracking for the
// closeable capability. Disabled diagnostics contribute no transformer.
//
// Diagnostics go to the WithSink sink, else to the WithLogger logger, else
// to standard error.
func New(cfg Config, opts ...Option) (*Agent, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
		if cfg.Trace {
			if dev, err := zap.NewDevelopment(); err == nil {
				logger = dev
			}
		}
	}

	sink := o.sink
	switch {
	case sink != nil:
	case o.logger != nil:
		sink = report.ZapSink{Logger: logger}
	default:
		sink = report.NewWriterSink(os.Stderr)
	}
	if o.registerer != nil {
		metrics, err := report.NewMetricsSink(o.registerer, sink)
		if err != nil {
			return nil, err
		}
		sink = metrics
	}

	a := &Agent{
		cfg:    cfg,
		logger: logger,
		runtime: &Runtime{
			Sink:     sink,
			Affinity: affinity.NewCell(sink),
			Registry: drift.NewRegistry(),
		},
		interval: o.interval,
	}
	a.pipeline = instrument.NewPipeline(logger.Named("pipeline"), a.transformers()...)

	if o.registerer != nil {
		if err := registerPipelineMetrics(o.registerer, a.pipeline); err != nil {
			return nil, err
		}
	}

	logger.Debug("agent configured",
		zap.Bool("leak_unreleased", cfg.LeakUnreleased),
		zap.Bool("leak_double_release", cfg.LeakDoubleRelease),
		zap.Bool("unclosed_tracking", cfg.UnclosedTracking),
		zap.Bool("constant_drift", cfg.ConstantDrift),
		zap.Bool("thread_affinity", cfg.ThreadAffinity),
		zap.Int("transformers", len(a.pipeline.Transformers())),
	)
	return a, nil
}

func (a *Agent) transformers() []instrument.Transformer {
	var out []instrument.Transformer
	if a.cfg.ConstantDrift {
		out = append(out, instrument.NewDriftTransformer(a.runtime.Registry))
	}
	if a.cfg.ThreadAffinity {
		out = append(out, instrument.NewAffinityTransformer())
	}

	if a.cfg.LeakUnreleased || a.cfg.LeakDoubleRelease {
		var opts []instrument.LeakOption
		if !a.cfg.LeakUnreleased {
			opts = append(opts, instrument.WithoutUnreleasedCheck())
		}
		out = append(out, instrument.NewLeakTransformer(instrument.ReleaseSpec, a.cfg.LeakDoubleRelease, opts...))
	}
	// Closeable tracking always checks for unclosed instances.
	if a.cfg.UnclosedTracking {
		out = append(out, instrument.NewLeakTransformer(instrument.CloseableSpec, a.cfg.LeakDoubleRelease))
	}
	return out
}

// Config returns the configuration the agent was built with.
func (a *Agent) Config() Config {
	return a.cfg
}

// Runtime returns the shared runtime state.
func (a *Agent) Runtime() *Runtime {
	return a.runtime
}

// Stats returns the pipeline counters.
func (a *Agent) Stats() instrument.StatsSnapshot {
	return a.pipeline.Stats()
}

// Transform handles one module-load event. It returns nil bytes when the
// module must be loaded unchanged, and an error when the load must be
// aborted.
func (a *Agent) Transform(ns resolve.Namespace, name string, raw []byte) ([]byte, error) {
	return a.pipeline.Transform(ns, name, raw)
}

// NewHost returns an execution host wired to the agent's runtime.
func (a *Agent) NewHost() *host.Host {
	return host.New(
		host.WithSink(a.runtime.Sink),
		host.WithAffinity(a.runtime.Affinity),
		host.WithLogger(a.logger.Named("host")),
	)
}

// Start launches the constant-drift watchdog, reading live values through
// resolver, until ctx is done. It is a no-op when constant-drift is
// disabled.
func (a *Agent) Start(ctx context.Context, resolver drift.Resolver) error {
	if !a.cfg.ConstantDrift {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return ErrAlreadyStarted
	}

	w := &drift.Watchdog{
		Registry: a.runtime.Registry,
		Resolver: resolver,
		Sink:     a.runtime.Sink,
		Interval: a.interval,
	}
	done := make(chan struct{})
	a.done = done

	go func() {
		defer close(done)
		a.logger.Debug("watchdog started", zap.Int("records", a.runtime.Registry.Len()))
		w.Run(ctx)
		a.logger.Debug("watchdog stopped")
	}()
	return nil
}

// Wait blocks until a started watchdog has stopped.
func (a *Agent) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}
