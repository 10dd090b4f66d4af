//go:build cgo && jsonnet_cgo

package libjsonnet

/*
#cgo LDFLAGS: -ljsonnet
#include <stdlib.h>

struct JsonnetVm;
struct JsonnetJsonValue;

extern struct JsonnetVm *jsonnet_make(void);
extern void jsonnet_destroy(struct JsonnetVm *vm);
extern const char *jsonnet_version(void);
extern char *jsonnet_evaluate_snippet(struct JsonnetVm *vm, const char *filename, const char *snippet, int *error);
extern char *jsonnet_realloc(struct JsonnetVm *vm, char *buf, size_t sz);
extern void jsonnet_ext_var(struct JsonnetVm *vm, const char *key, const char *val);
extern void jsonnet_ext_code(struct JsonnetVm *vm, const char *key, const char *val);
extern void jsonnet_tla_var(struct JsonnetVm *vm, const char *key, const char *val);
extern void jsonnet_tla_code(struct JsonnetVm *vm, const char *key, const char *val);
extern void jsonnet_max_stack(struct JsonnetVm *vm, unsigned v);
extern void jsonnet_max_trace(struct JsonnetVm *vm, unsigned v);

typedef struct JsonnetJsonValue *(*JsonnetNativeCallback)(void *ctx, const struct JsonnetJsonValue *const *argv, int *success);
extern void jsonnet_native_callback(struct JsonnetVm *vm, const char *name, JsonnetNativeCallback cb, void *ctx, const char *const *params);

struct JsonnetJsonValue *nativeTrampoline(void *ctx, struct JsonnetJsonValue **argv, int *success);

static void register_native(struct JsonnetVm *vm, const char *name, void *ctx, char **params) {
	jsonnet_native_callback(vm, name, (JsonnetNativeCallback)nativeTrampoline, ctx, (const char *const *)params);
}
*/
import "C"

import (
	"context"
	"sync"
	"unicode/utf8"
	"unsafe"

	gopointer "github.com/mattn/go-pointer"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

// Engine creates evaluator instances backed by the native library.
type Engine struct{}

// New returns the native engine. The library is linked at build time, so
// there is no runtime to initialize and NewInstance cannot fail transiently.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string { return "cgo" }

func (e *Engine) NewInstance(ctx context.Context) (bridge.Instance, error) {
	vm := C.jsonnet_make()
	if vm == nil {
		return nil, bridge.ErrInvalidPointer
	}
	return &Instance{vm: vm}, nil
}

// Instance wraps one native JsonnetVm. The mutex serializes evaluation
// against Close: destroying the VM mid-evaluation is undefined behavior in
// the C library, so an abandoned evaluation finishes before teardown.
type Instance struct {
	mu      sync.Mutex
	vm      *C.struct_JsonnetVm
	holders []unsafe.Pointer
	closed  bool
}

func (i *Instance) lock()   { i.mu.Lock() }
func (i *Instance) unlock() { i.mu.Unlock() }

func (i *Instance) guard() error {
	if i.closed {
		return bridge.ErrInstanceClosed
	}
	return nil
}

func (i *Instance) setKV(key, value string, set func(vm *C.struct_JsonnetVm, k, v *C.char)) error {
	i.lock()
	defer i.unlock()
	if err := i.guard(); err != nil {
		return err
	}
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	cval := C.CString(value)
	defer C.free(unsafe.Pointer(cval))
	set(i.vm, ckey, cval)
	return nil
}

func (i *Instance) ExtVar(key, value string) error {
	return i.setKV(key, value, func(vm *C.struct_JsonnetVm, k, v *C.char) { C.jsonnet_ext_var(vm, k, v) })
}

func (i *Instance) ExtCode(key, value string) error {
	return i.setKV(key, value, func(vm *C.struct_JsonnetVm, k, v *C.char) { C.jsonnet_ext_code(vm, k, v) })
}

func (i *Instance) TLAVar(key, value string) error {
	return i.setKV(key, value, func(vm *C.struct_JsonnetVm, k, v *C.char) { C.jsonnet_tla_var(vm, k, v) })
}

func (i *Instance) TLACode(key, value string) error {
	return i.setKV(key, value, func(vm *C.struct_JsonnetVm, k, v *C.char) { C.jsonnet_tla_code(vm, k, v) })
}

func (i *Instance) MaxStack(n int) error {
	i.lock()
	defer i.unlock()
	if err := i.guard(); err != nil {
		return err
	}
	C.jsonnet_max_stack(i.vm, C.uint(n))
	return nil
}

func (i *Instance) MaxTrace(n int) error {
	i.lock()
	defer i.unlock()
	if err := i.guard(); err != nil {
		return err
	}
	C.jsonnet_max_trace(i.vm, C.uint(n))
	return nil
}

func (i *Instance) NativeCallback(name string, params []string, fn bridge.NativeFunc) error {
	i.lock()
	defer i.unlock()
	if err := i.guard(); err != nil {
		return err
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	// NULL-terminated C array of parameter names. The library copies it
	// during registration, so everything is freed before returning.
	ptrSize := unsafe.Sizeof((*C.char)(nil))
	cparams := (**C.char)(C.malloc(C.size_t(len(params)+1) * C.size_t(ptrSize)))
	defer C.free(unsafe.Pointer(cparams))
	slot := unsafe.Slice(cparams, len(params)+1)
	for j, p := range params {
		slot[j] = C.CString(p)
		defer C.free(unsafe.Pointer(slot[j]))
	}
	slot[len(params)] = nil

	holder := gopointer.Save(&nativeHolder{vm: i.vm, arity: len(params), fn: fn})
	i.holders = append(i.holders, holder)
	C.register_native(i.vm, cname, holder, cparams)
	return nil
}

func (i *Instance) EvaluateSnippet(ctx context.Context, filename, code string) (string, bool, error) {
	i.lock()
	defer i.unlock()
	if err := i.guard(); err != nil {
		return "", false, err
	}

	cfilename := C.CString(filename)
	defer C.free(unsafe.Pointer(cfilename))
	ccode := C.CString(code)
	defer C.free(unsafe.Pointer(ccode))

	var cerr C.int
	result := C.jsonnet_evaluate_snippet(i.vm, cfilename, ccode, &cerr)
	payload := C.GoString(result)
	C.jsonnet_realloc(i.vm, result, 0)

	if !utf8.ValidString(payload) {
		return "", false, bridge.ErrInvalidEncoding
	}
	return payload, cerr != 0, nil
}

func (i *Instance) Version(ctx context.Context) (string, error) {
	// static storage in the library, never freed
	return C.GoString(C.jsonnet_version()), nil
}

func (i *Instance) Close(ctx context.Context) error {
	i.lock()
	defer i.unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	C.jsonnet_destroy(i.vm)
	i.vm = nil
	for _, h := range i.holders {
		gopointer.Unref(h)
	}
	i.holders = nil
	return nil
}
