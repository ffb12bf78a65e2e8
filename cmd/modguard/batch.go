package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/modguard/agent"
	"github.com/kolkov/modguard/internal/resolve"
)

// batch instruments module files from one directory into another.
//
// Each file is one load event. Ancestors are resolved from the input
// directory first, then from the classpath directories in order.
type batch struct {
	agent   *agent.Agent
	ns      resolve.Namespace
	outDir  string
	workers int
	logger  *zap.Logger
}

// fileResult is the outcome of one load event.
type fileResult struct {
	Module  string
	Changed bool
	Err     error
}

func newBatch(a *agent.Agent, inDir, outDir string, classpath []string, workers int, logger *zap.Logger) *batch {
	chain := resolve.Chain{resolve.DirNamespace{Root: inDir}}
	for _, dir := range classpath {
		chain = append(chain, resolve.DirNamespace{Root: dir})
	}
	if workers < 1 {
		workers = 1
	}
	return &batch{
		agent:   a,
		ns:      chain,
		outDir:  outDir,
		workers: workers,
		logger:  logger,
	}
}

// moduleFiles lists the encoded modules in dir, sorted by name.
func moduleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isModuleFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isModuleFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, resolve.FileExt) && !strings.HasPrefix(base, ".")
}

// moduleName maps <dir>/a.b.C.mgm to a.b.C.
func moduleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), resolve.FileExt)
}

// run processes files with bounded concurrency. Per-file failures do not
// stop the batch; they are returned joined after every file was handled.
func (b *batch) run(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, err := b.transformFile(path)
			results[i] = fileResult{Module: moduleName(path), Changed: changed, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// transformFile handles one load event and writes the module to the output
// directory. Unchanged modules are copied verbatim; failed loads write
// nothing.
func (b *batch) transformFile(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	name := moduleName(path)
	out, err := b.agent.Transform(b.ns, name, raw)
	if err != nil {
		return false, err
	}

	changed := out != nil
	if !changed {
		out = raw
	}
	if err := writeFileAtomic(filepath.Join(b.outDir, filepath.Base(path)), out); err != nil {
		return false, err
	}

	b.logger.Debug("module written", zap.String("module", name), zap.Bool("changed", changed))
	return changed, nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// a watcher on the output directory never sees a partial module.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".modguard-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
