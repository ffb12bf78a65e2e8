package report

import (
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ZapSink logs each diagnostic as a structured warning.
type ZapSink struct {
	Logger *zap.Logger
}

// Report implements Sink.
func (s ZapSink) Report(d Diagnostic) {
	fields := []zap.Field{
		zap.String("kind", string(d.Kind)),
	}
	if d.Context != nil {
		fields = append(fields,
			zap.String("context", d.Context.Message),
			zap.String("stack", d.Context.FormatStack()),
		)
	}
	s.Logger.Warn(d.Message, fields...)
}

// WriterSink writes the multi-line Format block of each diagnostic.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink writing to w, typically os.Stderr.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Report implements Sink.
func (s *WriterSink) Report(d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, d.Format())
}

// Collector records diagnostics in memory. Used by tests and by the CLI
// summary.
type Collector struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// Report implements Sink.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, d)
}

// All returns a copy of every collected diagnostic.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// Count returns how many diagnostics of kind were collected.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards collected diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = nil
}

// MetricsSink counts diagnostics per kind and forwards them to Next.
type MetricsSink struct {
	Next    Sink
	counter *prometheus.CounterVec
}

// NewMetricsSink registers the modguard_diagnostics_total counter on reg.
func NewMetricsSink(reg prometheus.Registerer, next Sink) (*MetricsSink, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modguard",
		Name:      "diagnostics_total",
		Help:      "Diagnostics reported by injected runtime checks, by kind.",
	}, []string{"kind"})
	if err := reg.Register(counter); err != nil {
		return nil, err
	}
	return &MetricsSink{Next: next, counter: counter}, nil
}

// Report implements Sink.
func (s *MetricsSink) Report(d Diagnostic) {
	s.counter.WithLabelValues(string(d.Kind)).Inc()
	if s.Next != nil {
		s.Next.Report(d)
	}
}

// Counter exposes the underlying vector for inspection.
func (s *MetricsSink) Counter() *prometheus.CounterVec {
	return s.counter
}
