package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kolkov/modguard/agent"
	"github.com/kolkov/modguard/internal/config"
)

// app holds state shared by every subcommand once flags are parsed.
type app struct {
	configPath string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "modguard",
		Short: "Load-time module instrumentation for leak, thread-affinity and constant-drift checks",
		Long: `modguard rewrites encoded modules so that they report, at runtime:

  - resource-owning instances that are never released (and, optionally,
    released twice)
  - thread-affine operations called off the owning thread
  - shared "constant" static fields whose value drifts

Modules are read from a directory of <name>.mgm files. Ancestors are
resolved from the same directory and from --classpath directories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "version", "help", "inspect":
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./modguard.yaml)")
	flags.Bool("trace", false, "log every transformation")
	flags.Bool("leak-unreleased", true, "report release-capable instances finalized without release")
	flags.Bool("leak-double-release", false, "report a second release of the same instance")
	flags.Bool("unclosed-tracking", true, "report closeable instances that are never closed")
	flags.Bool("constant-drift", true, "watch shared constant fields for drift")
	flags.Bool("thread-affinity", true, "check thread-affine operations")
	flags.Int("workers", 0, "concurrent load events (default number of CPUs)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newTransformCmd(a),
		newWatchCmd(a),
		newInspectCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	// Only flags set on the command line override file and environment values.
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.Agent.Trace {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	return nil
}

// newAgent builds the agent for the loaded configuration.
func (a *app) newAgent() (*agent.Agent, error) {
	return agent.New(a.cfg.Agent,
		agent.WithLogger(a.logger),
		agent.WithRegisterer(a.registry),
		agent.WithWatchInterval(a.cfg.WatchdogInterval),
	)
}

// serveMetrics exposes the registry until ctx is done. It is a no-op when
// no metrics address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
