// Package host executes transformed modules in-process.
//
// A Host plays the part of the program that loads the modules a Pipeline
// produced. It keeps the static state of every loaded module, constructs
// instances, dispatches method calls and finalization, and runs the probes
// injected into prologues and epilogues against the shared runtime state
// (affinity cell, diagnostic sink). Method bodies are opaque bytes in the
// structural model; Go functions registered with Bind stand in for them.
//
// Basic usage:
//
//	h := host.New(host.WithSink(sink), host.WithAffinity(cell))
//	h.Load(raw)
//	conn, _ := h.New("com.example.Conn", "")
//	h.Call(conn, "close")
//
// Thread Safety: Safe for concurrent use. Calls on the same instance may run
// concurrently; release methods guarded for double release are serialized
// on the instance lock.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/guard/affinity"
	"github.com/kolkov/modguard/internal/guard/report"
)

// Sentinel errors returned (wrapped) by Host operations.
var (
	ErrNotLoaded     = errors.New("module not loaded")
	ErrAlreadyLoaded = errors.New("module already loaded")
	ErrNoSuchMethod  = errors.New("no such method")
	ErrNoSuchField   = errors.New("no such static field")
)

// Body stands in for the opaque body of one method. inst is nil for static
// methods and static initializers.
type Body func(h *Host, inst *Instance) error

// Option configures a Host.
type Option func(*Host)

// WithSink sets the diagnostic sink. Defaults to report.Nop.
func WithSink(sink report.Sink) Option {
	return func(h *Host) {
		h.sink = sink
	}
}

// WithAffinity sets the owning-thread cell shared with other hosts.
// Defaults to a fresh cell reporting to the host's sink.
func WithAffinity(cell *affinity.Cell) Option {
	return func(h *Host) {
		h.cell = cell
	}
}

// WithLogger sets the logger used for load and call tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// Host holds loaded modules and their static state.
type Host struct {
	sink   report.Sink
	cell   *affinity.Cell
	logger *zap.Logger

	mu      sync.RWMutex
	modules map[string]*loadedModule
	bodies  map[string]Body
}

// loadedModule is a module plus its static field values.
type loadedModule struct {
	module *classfile.Module

	mu      sync.RWMutex
	statics map[string]any
}

func (lm *loadedModule) static(field string) any {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.statics[field]
}

func (lm *loadedModule) setStatic(field string, value any) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.statics[field] = value
}

// New returns an empty host.
func New(opts ...Option) *Host {
	h := &Host{
		modules: make(map[string]*loadedModule),
		bodies:  make(map[string]Body),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sink == nil {
		h.sink = report.Nop
	}
	if h.cell == nil {
		h.cell = affinity.NewCell(h.sink)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Bind registers body for every overload of module.method. Bodies may be
// bound before or after the module is loaded.
func (h *Host) Bind(module, method string, body Body) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bodies[module+"."+method] = body
}

// Load decodes raw, installs the module and runs its static initializer.
//
// Static fields start out with their initializer text as value, or nil.
// The static initializer (including its injected epilogue) runs before
// Load returns.
func (h *Host) Load(raw []byte) (*classfile.Module, error) {
	m, err := classfile.Decode(raw)
	if err != nil {
		return nil, err
	}

	lm := &loadedModule{module: m, statics: make(map[string]any)}
	for _, f := range m.Fields {
		if f.IsStatic() && f.HasInitializer {
			lm.statics[f.Name] = f.Initializer
		}
	}

	h.mu.Lock()
	if _, exists := h.modules[m.Name]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, m.Name)
	}
	h.modules[m.Name] = lm
	h.mu.Unlock()

	h.logger.Debug("module loaded", zap.String("module", m.Name), zap.Int("fields", len(m.Fields)), zap.Int("methods", len(m.Methods)))

	if clinit := m.StaticInit(); clinit != nil {
		if err := h.invoke(lm, nil, clinit); err != nil {
			return nil, fmt.Errorf("initialize %s: %w", m.Name, err)
		}
	}
	return m, nil
}

// Module returns the loaded model of name, or nil.
func (h *Host) Module(name string) *classfile.Module {
	if lm := h.lookup(name); lm != nil {
		return lm.module
	}
	return nil
}

// New constructs an instance of module with the constructor matching
// descriptor ("" selects the no-argument constructor).
//
// Constructors of loaded ancestors run first, root-most first, each with
// its no-argument constructor when it declares one. If the module (or an
// ancestor) declares a finalize method, the instance is registered for
// finalization when it becomes unreachable.
func (h *Host) New(module, descriptor string) (*Instance, error) {
	lm := h.lookup(module)
	if lm == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, module)
	}
	if descriptor == "" {
		descriptor = classfile.NoArgDescriptor
	}

	ctor := findDeclared(lm.module, classfile.ConstructorName, descriptor)
	if ctor == nil && (descriptor != classfile.NoArgDescriptor || len(lm.module.Constructors()) > 0) {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, module, classfile.ConstructorName, descriptor)
	}

	inst := newInstance(lm)
	chain := h.ancestry(lm)
	for i := len(chain) - 1; i >= 1; i-- {
		if super := findDeclared(chain[i].module, classfile.ConstructorName, classfile.NoArgDescriptor); super != nil {
			if err := h.invoke(chain[i], inst, super); err != nil {
				return nil, err
			}
		}
	}
	if ctor != nil {
		if err := h.invoke(lm, inst, ctor); err != nil {
			return nil, err
		}
	}

	if h.finalizable(chain) {
		runtime.SetFinalizer(inst, func(inst *Instance) {
			if err := h.Finalize(inst); err != nil {
				h.logger.Warn("finalization failed", zap.String("module", inst.Module()), zap.Error(err))
			}
		})
	}
	return inst, nil
}

// Call invokes the instance method name on inst, dispatching to the most
// derived loaded declaration.
func (h *Host) Call(inst *Instance, name string) error {
	for _, lm := range h.ancestry(inst.lm) {
		for _, meth := range lm.module.MethodsNamed(name) {
			if !meth.Modifiers.Has(classfile.Static) && !meth.IsConstructor() {
				return h.invoke(lm, inst, meth)
			}
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, inst.Module(), name)
}

// CallStatic invokes the static method name of module.
func (h *Host) CallStatic(module, name string) error {
	lm := h.lookup(module)
	if lm == nil {
		return fmt.Errorf("%w: %s", ErrNotLoaded, module)
	}
	for _, meth := range lm.module.MethodsNamed(name) {
		if meth.Modifiers.Has(classfile.Static) && meth.Name != classfile.StaticInitName {
			return h.invoke(lm, nil, meth)
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, module, name)
}

// Finalize runs the finalize chain of inst, most derived first. It runs at
// most once per instance, whether called directly or by the garbage
// collector.
func (h *Host) Finalize(inst *Instance) error {
	if !inst.finalized.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(inst, nil)

	for _, lm := range h.ancestry(inst.lm) {
		if fin := findDeclared(lm.module, classfile.FinalizeName, classfile.NoArgDescriptor); fin != nil && !fin.Modifiers.Has(classfile.Static) {
			if err := h.invoke(lm, inst, fin); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadStatic returns the current value of a static field. It implements
// drift.Resolver.
func (h *Host) ReadStatic(module, field string) (any, error) {
	lm, err := h.staticField(module, field)
	if err != nil {
		return nil, err
	}
	return lm.static(field), nil
}

// SetStatic assigns a static field.
func (h *Host) SetStatic(module, field string, value any) error {
	lm, err := h.staticField(module, field)
	if err != nil {
		return err
	}
	lm.setStatic(field, value)
	return nil
}

func (h *Host) staticField(module, field string) (*loadedModule, error) {
	lm := h.lookup(module)
	if lm == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, module)
	}
	if f := lm.module.Field(field); f == nil || !f.IsStatic() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchField, module, field)
	}
	return lm, nil
}

func (h *Host) lookup(name string) *loadedModule {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.modules[name]
}

func (h *Host) body(module, method string) Body {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bodies[module+"."+method]
}

// ancestry returns lm followed by its loaded superclasses, nearest first.
// The walk stops at the first ancestor that is not loaded.
func (h *Host) ancestry(lm *loadedModule) []*loadedModule {
	chain := []*loadedModule{lm}
	seen := map[string]bool{lm.module.Name: true}
	for cur := lm; cur.module.Super != "" && !seen[cur.module.Super]; {
		seen[cur.module.Super] = true
		next := h.lookup(cur.module.Super)
		if next == nil {
			break
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

func (h *Host) finalizable(chain []*loadedModule) bool {
	for _, lm := range chain {
		if findDeclared(lm.module, classfile.FinalizeName, classfile.NoArgDescriptor) != nil {
			return true
		}
	}
	return false
}

// invoke runs one method: prologue probes, bound body, epilogue probes.
// The epilogue is skipped when the body fails.
func (h *Host) invoke(lm *loadedModule, inst *Instance, meth *classfile.Method) error {
	if inst != nil && hasOp(meth.Prologue, classfile.ProbeLeakReleaseOnce) {
		inst.monitor.Lock()
		defer inst.monitor.Unlock()
	}

	h.runProbes(lm, inst, meth.Prologue)
	if body := h.body(lm.module.Name, meth.Name); body != nil {
		if err := body(h, inst); err != nil {
			return fmt.Errorf("%s.%s: %w", lm.module.Name, meth.Name, err)
		}
	}
	h.runProbes(lm, inst, meth.Epilogue)
	return nil
}

func findDeclared(m *classfile.Module, name, descriptor string) *classfile.Method {
	for _, meth := range m.MethodsNamed(name) {
		if meth.Descriptor == descriptor {
			return meth
		}
	}
	return nil
}
