package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	opts := &transformOptions{}

	cmd := &cobra.Command{
		Use:   "watch <module-dir>",
		Short: "Instrument modules as they appear in a directory",
		Long: `Instrument every module already in the directory, then keep watching it
and instrument each module file that is created or rewritten, until
interrupted. Each file event is one load event.

Examples:
  modguard watch -o out/ modules/
  modguard watch -o out/ --metrics-addr :9090 modules/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, a, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "output", "o", "", "output directory (required)")
	cmd.Flags().StringSliceVar(&opts.classpath, "classpath", nil, "extra directories to resolve ancestors from")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runWatch(ctx context.Context, a *app, opts *transformOptions, inDir string) error {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)

	b := newBatch(ag, inDir, opts.outDir, opts.classpath, a.cfg.Workers, a.logger)
	w, err := newModuleWatcher(b, inDir)
	if err != nil {
		return err
	}
	defer w.Close()

	files, err := moduleFiles(inDir)
	if err != nil {
		return err
	}
	if _, err := b.run(ctx, files); err != nil {
		a.logger.Warn("initial batch had failures", zap.Error(err))
	}

	a.logger.Info("watching", zap.String("dir", inDir), zap.String("output", opts.outDir))
	w.Run(ctx)
	return nil
}

// moduleWatcher turns file-system events on a directory into load events.
type moduleWatcher struct {
	watcher *fsnotify.Watcher
	batch   *batch
}

func newModuleWatcher(b *batch, dir string) (*moduleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	return &moduleWatcher{watcher: watcher, batch: b}, nil
}

// Run is the main event loop. It returns when ctx is done or the watcher
// is closed.
func (w *moduleWatcher) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.batch.logger.Warn("watch error", zap.Error(err))

		case <-ctx.Done():
			return
		}
	}
}

// handle processes Create and Write events on module files.
func (w *moduleWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isModuleFile(event.Name) {
		return
	}

	changed, err := w.batch.transformFile(event.Name)
	if err != nil {
		w.batch.logger.Error("load event failed", zap.String("file", event.Name), zap.Error(err))
		return
	}
	w.batch.logger.Info("module processed", zap.String("module", moduleName(event.Name)), zap.Bool("instrumented", changed))
}

// Close stops watching.
func (w *moduleWatcher) Close() error {
	return w.watcher.Close()
}
