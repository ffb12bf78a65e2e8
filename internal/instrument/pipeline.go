// Package instrument - Pipeline driver.
package instrument

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/resolve"
)

// Pipeline runs a fixed sequence of transformers over one module per load
// event.
//
// Algorithm:
//  1. Skip core modules no transformer requires (no decoding at all)
//  2. Decode the raw bytes (fatal on failure)
//  3. Bind a fresh resolve.Context to the requesting namespace
//  4. Run every transformer in order, ORing the "mutated" results
//  5. Re-encode if anything mutated (fatal on failure), else report "unchanged"
//
// Thread Safety: Safe for concurrent load events. Each call owns its
// decoded model and resolution context.
type Pipeline struct {
	transformers []Transformer
	logger       *zap.Logger
	stats        *Stats
}

// NewPipeline returns a pipeline running transformers in the given order.
// A nil logger disables logging.
func NewPipeline(logger *zap.Logger, transformers ...Transformer) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		transformers: transformers,
		logger:       logger,
		stats:        newStats(len(transformers)),
	}
}

// Transformers returns the configured transformers in execution order.
func (p *Pipeline) Transformers() []Transformer {
	return p.transformers
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// Transform processes one module-load event.
//
// Parameters:
//   - ns: The requesting program's load namespace (used to resolve ancestors)
//   - name: Fully qualified module name as reported by the loader
//   - raw: Encoded module bytes
//
// Returns:
//   - []byte: Replacement bytes, or nil if the original bytes must be kept
//   - error: Decode, transformer or encode failure; the load must be aborted
//
// A returned error is never accompanied by bytes. In particular an encode
// failure does not fall back to the original bytes: it indicates a
// transformer bug and must surface.
func (p *Pipeline) Transform(ns resolve.Namespace, name string, raw []byte) ([]byte, error) {
	p.stats.seen.Add(1)

	if len(p.transformers) == 0 {
		p.stats.skipped.Add(1)
		return nil, nil
	}
	if IsCoreModule(name) && !p.required(name) {
		p.stats.skipped.Add(1)
		return nil, nil
	}

	out, err := p.transform(ns, name, raw)
	if err != nil {
		p.stats.failed.Add(1)
		p.logger.Error("module transformation failed", zap.String("module", name), zap.Error(err))
		return nil, err
	}
	if out != nil {
		p.stats.mutated.Add(1)
	}
	return out, nil
}

func (p *Pipeline) transform(ns resolve.Namespace, name string, raw []byte) ([]byte, error) {
	m, err := classfile.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	if name != "" && m.Name != name {
		return nil, fmt.Errorf("module %s: %w", name, &classfile.DecodeError{
			Message: fmt.Sprintf("bytes declare module %s", m.Name),
		})
	}

	rc := resolve.New(ns)
	rc.Bind(m)

	mutated := false
	var applied []string
	for i, t := range p.transformers {
		changed, err := t.Transform(rc, m)
		if err != nil {
			return nil, &TransformError{Transformer: t.Name(), Module: m.Name, Err: err}
		}
		if changed {
			mutated = true
			applied = append(applied, t.Name())
			p.stats.stageMutated(i)
		}
	}

	if !mutated {
		p.logger.Debug("module unchanged", zap.String("module", m.Name))
		return nil, nil
	}

	out, err := classfile.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name, err)
	}

	p.logger.Debug("module instrumented",
		zap.String("module", m.Name),
		zap.Strings("transformers", applied),
		zap.Int("bytes_in", len(raw)),
		zap.Int("bytes_out", len(out)),
	)
	return out, nil
}

// required reports whether any transformer asked to see a core module.
func (p *Pipeline) required(name string) bool {
	for _, t := range p.transformers {
		if t.Requires(name) {
			return true
		}
	}
	return false
}
