package agent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/modguard/internal/instrument"
)

// registerPipelineMetrics exports the pipeline counters as
// modguard_modules_<outcome>_total.
func registerPipelineMetrics(reg prometheus.Registerer, p *instrument.Pipeline) error {
	counters := []struct {
		name string
		help string
		read func(instrument.StatsSnapshot) int64
	}{
		{"modules_seen_total", "Module-load events received.", func(s instrument.StatsSnapshot) int64 { return s.Seen }},
		{"modules_skipped_total", "Core modules skipped without decoding.", func(s instrument.StatsSnapshot) int64 { return s.Skipped }},
		{"modules_instrumented_total", "Modules returned with new bytes.", func(s instrument.StatsSnapshot) int64 { return s.Mutated }},
		{"modules_failed_total", "Module-load events aborted with an error.", func(s instrument.StatsSnapshot) int64 { return s.Failed }},
	}

	for _, c := range counters {
		read := c.read
		counter := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "modguard",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 {
			return float64(read(p.Stats()))
		})
		if err := reg.Register(counter); err != nil {
			return err
		}
	}
	return nil
}
