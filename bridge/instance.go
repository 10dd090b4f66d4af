package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Exported entry points of the evaluator module. The surface mirrors the
// classic libjsonnet C API so the same host code drives the WebAssembly
// build and a natively linked library.
const (
	exportAlloc           = "jsonnet_alloc"
	exportFree            = "jsonnet_free"
	exportMake            = "jsonnet_make"
	exportDestroy         = "jsonnet_destroy"
	exportExtVar          = "jsonnet_ext_var"
	exportExtCode         = "jsonnet_ext_code"
	exportTLAVar          = "jsonnet_tla_var"
	exportTLACode         = "jsonnet_tla_code"
	exportMaxStack        = "jsonnet_max_stack"
	exportMaxTrace        = "jsonnet_max_trace"
	exportNativeCallback  = "jsonnet_native_callback"
	exportEvaluateSnippet = "jsonnet_evaluate_snippet"
	exportRealloc         = "jsonnet_realloc"
	exportVersion         = "jsonnet_version"
)

// ErrInstanceClosed reports use of an instance after Close.
var ErrInstanceClosed = errors.New("evaluator instance closed")

type nativeEntry struct {
	params []string
	fn     NativeFunc
}

// wasmInstance drives one instantiation of the evaluator module. It is not
// safe for concurrent use; the VM layer creates one per evaluation.
type wasmInstance struct {
	rt   *Runtime
	name string
	mod  api.Module
	mem  api.Memory
	vm   uint64

	callbacks map[string]nativeEntry

	fnAlloc    api.Function
	fnFree     api.Function
	fnDestroy  api.Function
	fnExtVar   api.Function
	fnExtCode  api.Function
	fnTLAVar   api.Function
	fnTLACode  api.Function
	fnMaxStack api.Function
	fnMaxTrace api.Function
	fnNative   api.Function
	fnEvaluate api.Function
	fnRealloc  api.Function
	fnVersion  api.Function

	closeMu sync.Mutex
	closed  bool
}

func newWasmInstance(ctx context.Context, rt *Runtime, name string, mod api.Module) (*wasmInstance, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.New("evaluator module exports no memory")
	}

	inst := &wasmInstance{
		rt:        rt,
		name:      name,
		mod:       mod,
		mem:       mem,
		callbacks: make(map[string]nativeEntry),
	}

	for _, fn := range []struct {
		name string
		dst  *api.Function
	}{
		{exportAlloc, &inst.fnAlloc},
		{exportFree, &inst.fnFree},
		{exportDestroy, &inst.fnDestroy},
		{exportExtVar, &inst.fnExtVar},
		{exportExtCode, &inst.fnExtCode},
		{exportTLAVar, &inst.fnTLAVar},
		{exportTLACode, &inst.fnTLACode},
		{exportMaxStack, &inst.fnMaxStack},
		{exportMaxTrace, &inst.fnMaxTrace},
		{exportNativeCallback, &inst.fnNative},
		{exportEvaluateSnippet, &inst.fnEvaluate},
		{exportRealloc, &inst.fnRealloc},
		{exportVersion, &inst.fnVersion},
	} {
		*fn.dst = mod.ExportedFunction(fn.name)
		if *fn.dst == nil {
			return nil, fmt.Errorf("evaluator module does not export %s", fn.name)
		}
	}

	makeFn := mod.ExportedFunction(exportMake)
	if makeFn == nil {
		return nil, fmt.Errorf("evaluator module does not export %s", exportMake)
	}
	results, err := makeFn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", exportMake, err)
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, errors.New("evaluator refused to create a VM")
	}
	inst.vm = results[0]
	return inst, nil
}

// alloc reserves size bytes in the evaluator's linear memory.
func (i *wasmInstance) alloc(ctx context.Context) func(size uint32) (uint32, error) {
	return func(size uint32) (uint32, error) {
		results, err := i.fnAlloc.Call(ctx, uint64(size))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", exportAlloc, err)
		}
		if len(results) == 0 || results[0] == 0 {
			return 0, fmt.Errorf("%s(%d) failed", exportAlloc, size)
		}
		return uint32(results[0]), nil
	}
}

// freeInput returns a host-written input buffer to the evaluator allocator.
// Input buffers are distinct from result buffers: the evaluator copies
// registration arguments during the call, so inputs are freed immediately.
func (i *wasmInstance) freeInput(ctx context.Context, ptr uint32) {
	if ptr == 0 {
		return
	}
	i.fnFree.Call(ctx, uint64(ptr))
}

// callKV writes key/value as C strings, invokes fn(vm, key, value), and
// frees both inputs.
func (i *wasmInstance) callKV(ctx context.Context, fn api.Function, name, key, value string) error {
	if err := i.guard(); err != nil {
		return err
	}
	keyPtr, err := writeCString(i.mem, i.alloc(ctx), key)
	if err != nil {
		return fmt.Errorf("%s key: %w", name, err)
	}
	defer i.freeInput(ctx, keyPtr)

	valPtr, err := writeCString(i.mem, i.alloc(ctx), value)
	if err != nil {
		return fmt.Errorf("%s value: %w", name, err)
	}
	defer i.freeInput(ctx, valPtr)

	if _, err := fn.Call(ctx, i.vm, uint64(keyPtr), uint64(valPtr)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (i *wasmInstance) ExtVar(key, value string) error {
	return i.callKV(context.Background(), i.fnExtVar, exportExtVar, key, value)
}

func (i *wasmInstance) ExtCode(key, value string) error {
	return i.callKV(context.Background(), i.fnExtCode, exportExtCode, key, value)
}

func (i *wasmInstance) TLAVar(key, value string) error {
	return i.callKV(context.Background(), i.fnTLAVar, exportTLAVar, key, value)
}

func (i *wasmInstance) TLACode(key, value string) error {
	return i.callKV(context.Background(), i.fnTLACode, exportTLACode, key, value)
}

func (i *wasmInstance) MaxStack(n int) error {
	if err := i.guard(); err != nil {
		return err
	}
	_, err := i.fnMaxStack.Call(context.Background(), i.vm, uint64(uint32(n)))
	return err
}

func (i *wasmInstance) MaxTrace(n int) error {
	if err := i.guard(); err != nil {
		return err
	}
	_, err := i.fnMaxTrace.Call(context.Background(), i.vm, uint64(uint32(n)))
	return err
}

// NativeCallback registers fn under name and announces it to the evaluator
// so std.native(name) resolves. The params array crosses the boundary as a
// NULL-terminated array of C strings, matching the libjsonnet convention.
func (i *wasmInstance) NativeCallback(name string, params []string, fn NativeFunc) error {
	if err := i.guard(); err != nil {
		return err
	}
	ctx := context.Background()
	alloc := i.alloc(ctx)

	namePtr, err := writeCString(i.mem, alloc, name)
	if err != nil {
		return fmt.Errorf("%s name: %w", exportNativeCallback, err)
	}
	defer i.freeInput(ctx, namePtr)

	paramPtrs := make([]uint32, 0, len(params)+1)
	defer func() {
		for _, p := range paramPtrs {
			i.freeInput(ctx, p)
		}
	}()
	for _, p := range params {
		ptr, err := writeCString(i.mem, alloc, p)
		if err != nil {
			return fmt.Errorf("%s param: %w", exportNativeCallback, err)
		}
		paramPtrs = append(paramPtrs, ptr)
	}

	arrayPtr, err := alloc(uint32(len(params)+1) * 4)
	if err != nil {
		return err
	}
	defer i.freeInput(ctx, arrayPtr)
	for idx, p := range paramPtrs {
		if !i.mem.WriteUint32Le(arrayPtr+uint32(idx)*4, p) {
			return ErrInvalidPointer
		}
	}
	if !i.mem.WriteUint32Le(arrayPtr+uint32(len(params))*4, 0) {
		return ErrInvalidPointer
	}

	if _, err := i.fnNative.Call(ctx, i.vm, uint64(namePtr), uint64(arrayPtr)); err != nil {
		return fmt.Errorf("%s: %w", exportNativeCallback, err)
	}
	// Last write wins for duplicate names, same as external variables.
	i.callbacks[name] = nativeEntry{params: params, fn: fn}
	return nil
}

// EvaluateSnippet implements Instance. The foreign call blocks until the
// evaluator returns; the result buffer is materialized into host memory and
// released exactly once on every path, including read and encoding
// failures.
func (i *wasmInstance) EvaluateSnippet(ctx context.Context, filename, code string) (string, bool, error) {
	if err := i.guard(); err != nil {
		return "", false, err
	}
	alloc := i.alloc(ctx)

	filenamePtr, err := writeCString(i.mem, alloc, filename)
	if err != nil {
		return "", false, fmt.Errorf("marshal filename: %w", err)
	}
	defer i.freeInput(ctx, filenamePtr)

	codePtr, err := writeCString(i.mem, alloc, code)
	if err != nil {
		return "", false, fmt.Errorf("marshal source: %w", err)
	}
	defer i.freeInput(ctx, codePtr)

	errPtr, err := alloc(4)
	if err != nil {
		return "", false, err
	}
	defer i.freeInput(ctx, errPtr)
	if !i.mem.WriteUint32Le(errPtr, 0) {
		return "", false, ErrInvalidPointer
	}

	results, err := i.fnEvaluate.Call(ctx, i.vm, uint64(filenamePtr), uint64(codePtr), uint64(errPtr))
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", exportEvaluateSnippet, err)
	}
	if len(results) == 0 {
		return "", false, fmt.Errorf("%s returned no result", exportEvaluateSnippet)
	}

	flag, ok := i.mem.ReadUint32Le(errPtr)
	if !ok {
		flag = 1
	}

	buf := newForeignBuffer(uint32(results[0]), func(ptr uint32) error {
		_, err := i.fnRealloc.Call(ctx, i.vm, uint64(ptr), 0)
		return err
	})
	payload, err := materializeCString(i.mem, buf)
	if err != nil {
		return "", false, err
	}
	return payload, flag != 0, nil
}

// Version reads the evaluator's static version string. The buffer is owned
// by the evaluator for the life of the instance and is not released.
func (i *wasmInstance) Version(ctx context.Context) (string, error) {
	if err := i.guard(); err != nil {
		return "", err
	}
	results, err := i.fnVersion.Call(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", exportVersion, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%s returned no result", exportVersion)
	}
	raw, err := readCString(i.mem, uint32(results[0]))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Close destroys the foreign VM and the module instance. Idempotent.
func (i *wasmInstance) Close(ctx context.Context) error {
	i.closeMu.Lock()
	defer i.closeMu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true

	i.rt.forgetInstance(i.name)
	if i.vm != 0 {
		i.fnDestroy.Call(ctx, i.vm)
	}
	return i.mod.Close(ctx)
}

func (i *wasmInstance) guard() error {
	i.closeMu.Lock()
	defer i.closeMu.Unlock()
	if i.closed {
		return ErrInstanceClosed
	}
	return nil
}
