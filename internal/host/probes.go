package host

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/guard/report"
)

// probeFrames is the number of host frames between a probe and the public
// Host method that triggered it (runProbe, runProbes, invoke).
const probeFrames = 3

func (h *Host) runProbes(lm *loadedModule, inst *Instance, probes []classfile.Probe) {
	for _, p := range probes {
		h.runProbe(lm, inst, p)
	}
}

// runProbe executes one injected probe. Probes never fail: a probe that
// does not apply to the current frame (an instance probe in a static
// method) is ignored.
func (h *Host) runProbe(lm *loadedModule, inst *Instance, p classfile.Probe) {
	switch p.Op {
	case classfile.ProbeRecordOwner:
		h.cell.Record()

	case classfile.ProbeCheckOwner:
		h.cell.Check(p.Arg(0))

	case classfile.ProbeSnapshot:
		if v := lm.static(p.Arg(0)); v != nil {
			lm.setStatic(p.Arg(1), fmt.Sprint(v))
		}

	case classfile.ProbeLeakTrack:
		if inst != nil {
			inst.Set(p.Arg(0), report.NewContext(inst.Module()+" created", probeFrames))
		}

	case classfile.ProbeLeakRelease:
		if inst != nil {
			inst.Set(p.Arg(0), nil)
		}

	case classfile.ProbeLeakReleaseOnce:
		if inst == nil {
			return
		}
		released := report.NewContext(inst.Module()+" previously released", probeFrames)
		if prev, ok := inst.swapReleased(p.Arg(0), released).(*report.Context); ok {
			h.sink.Report(report.Diagnostic{
				Kind:    report.KindDoubleRelease,
				Message: fmt.Sprintf("double release of %s resource", inst.Module()),
				Context: prev,
			})
		}
		inst.Set(p.Arg(0), nil)

	case classfile.ProbeLeakCheck:
		if inst == nil || len(p.Args) > 1 && h.instanceOfAny(inst, p.Args[1:]) {
			return
		}
		if created, ok := inst.Get(p.Arg(0)).(*report.Context); ok {
			h.sink.Report(report.Diagnostic{
				Kind:    report.KindLeak,
				Message: fmt.Sprintf("undisposed %s resource", inst.Module()),
				Context: created,
			})
		}

	default:
		h.logger.Warn("unknown probe", zap.Stringer("op", p.Op), zap.String("module", lm.module.Name))
	}
}

// instanceOfAny reports whether inst's runtime type is, extends or
// implements one of names. Only loaded modules are consulted.
func (h *Host) instanceOfAny(inst *Instance, names []string) bool {
	if len(names) == 0 {
		return false
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	seen := make(map[string]bool)
	var visit func(name string) bool
	visit = func(name string) bool {
		if want[name] {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		lm := h.lookup(name)
		if lm == nil {
			return false
		}
		for _, iface := range lm.module.Interfaces {
			if visit(iface) {
				return true
			}
		}
		return lm.module.Super != "" && visit(lm.module.Super)
	}
	return visit(inst.Module())
}

func hasOp(probes []classfile.Probe, op classfile.ProbeOp) bool {
	for _, p := range probes {
		if p.Op == op {
			return true
		}
	}
	return false
}
