package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Global compilation cache shared by every Runtime in the process. Compiled
// machine code for the evaluator module is identical across runtimes, so
// there is no reason to compile it more than once per binary.
var (
	globalCache     wazero.CompilationCache
	globalCacheOnce sync.Once
)

func sharedCache() wazero.CompilationCache {
	globalCacheOnce.Do(func() {
		globalCache = wazero.NewCompilationCache()
	})
	return globalCache
}

type runtimeState int

const (
	stateUninitialized runtimeState = iota
	stateReady
)

// Runtime hosts the evaluator's WebAssembly build and implements Engine.
//
// Initialization (creating the wazero runtime, instantiating WASI and the
// host callback module, compiling the evaluator) happens at most once per
// Runtime, on first use. Concurrent first use performs exactly one
// initialization and every caller observes the ready state before
// proceeding. A failed initialization leaves the guard uninitialized so a
// later call retries; the cause may be transient resource pressure. Once
// ready, the state is written never again and the hot path takes only a
// read lock. A Runtime is never torn down mid-process.
type Runtime struct {
	module []byte

	mu       sync.RWMutex
	state    runtimeState
	runtime  wazero.Runtime
	compiled wazero.CompiledModule

	// Live instances keyed by module name, so the shared host callback
	// module can route native_call back to the owning instance.
	instMu    sync.Mutex
	instances map[string]*wasmInstance
	nextID    uint64
}

// NewRuntime creates an engine around an evaluator WebAssembly build.
// Nothing is compiled until the first instance is requested.
func NewRuntime(module []byte) *Runtime {
	return &Runtime{
		module:    module,
		instances: make(map[string]*wasmInstance),
	}
}

// Name implements Engine.
func (r *Runtime) Name() string {
	return "wasm"
}

// ensure moves the guard to the ready state, initializing on first use.
func (r *Runtime) ensure(ctx context.Context) error {
	r.mu.RLock()
	if r.state == stateReady {
		r.mu.RUnlock()
		return nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateReady {
		return nil
	}

	cfg := wazero.NewRuntimeConfig().WithCompilationCache(sharedCache())
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	if _, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(r.hostNativeCall).
		Export("native_call").
		Instantiate(ctx); err != nil {
		rt.Close(ctx)
		return fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, r.module)
	if err != nil {
		rt.Close(ctx)
		return fmt.Errorf("compile evaluator module: %w", err)
	}

	r.runtime = rt
	r.compiled = compiled
	r.state = stateReady
	return nil
}

// NewInstance implements Engine. Each instance is a fresh instantiation of
// the compiled module with its own linear memory, so instances share
// nothing but immutable compiled code.
func (r *Runtime) NewInstance(ctx context.Context) (Instance, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}

	r.instMu.Lock()
	r.nextID++
	name := fmt.Sprintf("jsonnet-%d", r.nextID)
	r.instMu.Unlock()

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate evaluator: %w", err)
	}

	inst, err := newWasmInstance(ctx, r, name, mod)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}

	r.instMu.Lock()
	r.instances[name] = inst
	r.instMu.Unlock()

	return inst, nil
}

func (r *Runtime) lookupInstance(name string) *wasmInstance {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	return r.instances[name]
}

func (r *Runtime) forgetInstance(name string) {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	delete(r.instances, name)
}
