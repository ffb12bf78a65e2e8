package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/guard/report"
	"github.com/kolkov/modguard/internal/resolve"
)

func encode(t *testing.T, m *classfile.Module) []byte {
	t.Helper()
	raw, err := classfile.Encode(m)
	require.NoError(t, err)
	return raw
}

func namespace(t *testing.T) *resolve.MapNamespace {
	t.Helper()
	ns := resolve.NewMapNamespace()
	for _, m := range []*classfile.Module{
		{Name: "java.lang.AutoCloseable", Modifiers: classfile.Interface},
		{Name: "com.badlogic.gdx.utils.Disposable", Modifiers: classfile.Interface},
	} {
		ns.Define(m.Name, encode(t, m))
	}
	return ns
}

func resource() *classfile.Module {
	return &classfile.Module{
		Name:       "com.example.SpriteSheet",
		Interfaces: []string{"com.badlogic.gdx.utils.Disposable", "java.lang.AutoCloseable"},
		Methods: []*classfile.Method{
			{Name: classfile.ConstructorName, Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public},
			{Name: "dispose", Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public},
			{Name: "close", Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public},
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Trace)
	assert.True(t, cfg.LeakUnreleased)
	assert.False(t, cfg.LeakDoubleRelease)
	assert.True(t, cfg.UnclosedTracking)
	assert.True(t, cfg.ConstantDrift)
	assert.True(t, cfg.ThreadAffinity)
}

// TestTransformerOrder tests which transformers each flag contributes.
func TestTransformerOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "defaults",
			cfg:  DefaultConfig(),
			want: []string{"constant-drift", "thread-affinity", "leak(dispose)", "leak(close)"},
		},
		{
			name: "everything off",
			cfg:  Config{},
			want: nil,
		},
		{
			name: "double release only",
			cfg:  Config{LeakDoubleRelease: true},
			want: []string{"leak(dispose)"},
		},
		{
			name: "closeable alone",
			cfg:  Config{UnclosedTracking: true},
			want: []string{"leak(close)"},
		},
		{
			name: "double release and closeable",
			cfg:  Config{LeakDoubleRelease: true, UnclosedTracking: true},
			want: []string{"leak(dispose)", "leak(close)"},
		},
		{
			name: "affinity only",
			cfg:  Config{ThreadAffinity: true},
			want: []string{"thread-affinity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			require.NoError(t, err)

			var got []string
			for _, tr := range a.pipeline.Transformers() {
				got = append(got, tr.Name())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestTransformAllDisabled tests that the no-op path keeps the original bytes.
func TestTransformAllDisabled(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)

	raw := encode(t, resource())
	out, err := a.Transform(namespace(t), "com.example.SpriteSheet", raw)
	require.NoError(t, err)
	assert.Nil(t, out)
}

// TestEndToEnd tests transformation and execution through the shared runtime.
func TestEndToEnd(t *testing.T) {
	collector := &report.Collector{}
	cfg := DefaultConfig()
	cfg.LeakDoubleRelease = true
	a, err := New(cfg, WithSink(collector), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	out, err := a.Transform(namespace(t), "com.example.SpriteSheet", encode(t, resource()))
	require.NoError(t, err)
	require.NotNil(t, out)

	h := a.NewHost()
	_, err = h.Load(out)
	require.NoError(t, err)

	sheet, err := h.New("com.example.SpriteSheet", "")
	require.NoError(t, err)
	require.NoError(t, h.Call(sheet, "dispose"))
	require.NoError(t, h.Call(sheet, "dispose"))
	require.NoError(t, h.Finalize(sheet))

	assert.Equal(t, 1, collector.Count(report.KindDoubleRelease))
	assert.Equal(t, 1, collector.Count(report.KindLeak), "never closed")

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.Mutated)
}

// TestUnclosedTrackingAlone tests closeable tracking with every other leak
// flag off.
func TestUnclosedTrackingAlone(t *testing.T) {
	collector := &report.Collector{}
	a, err := New(Config{UnclosedTracking: true}, WithSink(collector))
	require.NoError(t, err)

	out, err := a.Transform(namespace(t), "com.example.SpriteSheet", encode(t, resource()))
	require.NoError(t, err)
	require.NotNil(t, out)

	decoded, err := classfile.Decode(out)
	require.NoError(t, err)
	assert.True(t, decoded.HasInterface("modguard.marker.CloseTracked"))
	assert.False(t, decoded.HasInterface("modguard.marker.DisposeTracked"))

	h := a.NewHost()
	_, err = h.Load(out)
	require.NoError(t, err)

	sheet, err := h.New("com.example.SpriteSheet", "")
	require.NoError(t, err)
	require.NoError(t, h.Call(sheet, "dispose"))
	require.NoError(t, h.Finalize(sheet))
	assert.Equal(t, 1, collector.Count(report.KindLeak), "disposed but never closed")

	closed, err := h.New("com.example.SpriteSheet", "")
	require.NoError(t, err)
	require.NoError(t, h.Call(closed, "close"))
	require.NoError(t, h.Call(closed, "close"))
	require.NoError(t, h.Finalize(closed))
	assert.Equal(t, 1, collector.Count(report.KindLeak))
	assert.Zero(t, collector.Count(report.KindDoubleRelease))
}

// TestDefaultSink tests where diagnostics go without WithSink.
func TestDefaultSink(t *testing.T) {
	a, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &report.WriterSink{}, a.Runtime().Sink, "diagnostics must not be dropped")

	a, err = New(DefaultConfig(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.IsType(t, report.ZapSink{}, a.Runtime().Sink)

	collector := &report.Collector{}
	a, err = New(DefaultConfig(), WithSink(collector), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Same(t, collector, a.Runtime().Sink)
}

// TestWatchdogLifecycle tests Start and cancellation.
func TestWatchdogLifecycle(t *testing.T) {
	collector := &report.Collector{}
	a, err := New(DefaultConfig(), WithSink(collector), WithWatchInterval(5*time.Millisecond))
	require.NoError(t, err)

	color := &classfile.Module{
		Name: "com.badlogic.gdx.graphics.Color",
		Fields: []*classfile.Field{
			{Name: "RED", Type: "com.badlogic.gdx.graphics.Color", Modifiers: classfile.Public | classfile.Static, Initializer: "ff0000", HasInitializer: true},
		},
	}
	out, err := a.Transform(nil, color.Name, encode(t, color))
	require.NoError(t, err)

	h := a.NewHost()
	_, err = h.Load(out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx, h))
	assert.True(t, errors.Is(a.Start(ctx, h), ErrAlreadyStarted))

	require.NoError(t, h.SetStatic(color.Name, "RED", "00ff00"))
	require.Eventually(t, func() bool {
		return collector.Count(report.KindConstantDrift) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	a.Wait()
}

func TestStartDisabled(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), nil))
	a.Wait()
}

// TestMetrics tests the exported counters.
func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := &report.Collector{}
	a, err := New(DefaultConfig(), WithSink(collector), WithRegisterer(reg))
	require.NoError(t, err)

	_, err = a.Transform(nil, "java.util.HashMap", []byte("skipped"))
	require.NoError(t, err)
	_, err = a.Transform(namespace(t), "com.example.SpriteSheet", encode(t, resource()))
	require.NoError(t, err)

	a.Runtime().Sink.Report(report.Diagnostic{Kind: report.KindLeak, Message: "test"})

	count, err := testutil.GatherAndCount(reg, "modguard_modules_seen_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["modguard_modules_seen_total"])
	assert.Equal(t, float64(1), values["modguard_modules_skipped_total"])
	assert.Equal(t, float64(1), values["modguard_modules_instrumented_total"])
	assert.Equal(t, float64(1), values["modguard_diagnostics_total"])
	assert.Equal(t, 1, collector.Count(report.KindLeak))

	_, err = New(DefaultConfig(), WithRegisterer(reg))
	assert.Error(t, err, "counters cannot be registered twice")
}
