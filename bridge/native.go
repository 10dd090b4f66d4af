package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// hostNativeCall is the single host import the evaluator module uses to
// reach registered native callbacks. Arguments and results travel as JSON
// text in evaluator memory:
//
//	native_call(name *char, args *char, okPtr *u32) -> *char
//
// name is the callback name, args a JSON array of argument values. The
// returned buffer holds the JSON-encoded result when *okPtr is 1, or an
// error message when *okPtr is 0. The buffer is allocated here with
// jsonnet_alloc and ownership passes to the evaluator, which frees it.
// Returning NULL signals an internal host failure.
func (r *Runtime) hostNativeCall(ctx context.Context, mod api.Module, namePtr, argsPtr, okPtr uint32) uint32 {
	inst := r.lookupInstance(mod.Name())
	if inst == nil {
		return 0
	}

	payload, ok := inst.dispatchNative(ctx, namePtr, argsPtr)

	resultPtr, err := writeCString(inst.mem, inst.alloc(ctx), payload)
	if err != nil {
		return 0
	}
	var flag uint32
	if ok {
		flag = 1
	}
	if !inst.mem.WriteUint32Le(okPtr, flag) {
		return 0
	}
	return resultPtr
}

// dispatchNative decodes the call, runs the callback, and encodes the
// outcome. It never panics into the wasm stack: every failure becomes an
// (message, false) pair the evaluator raises as a Jsonnet runtime error.
func (i *wasmInstance) dispatchNative(ctx context.Context, namePtr, argsPtr uint32) (string, bool) {
	nameRaw, err := readCString(i.mem, namePtr)
	if err != nil {
		return "native call: unreadable callback name", false
	}
	name := string(nameRaw)

	entry, registered := i.callbacks[name]
	if !registered {
		return fmt.Sprintf("native function %q is not registered", name), false
	}

	argsRaw, err := readCString(i.mem, argsPtr)
	if err != nil {
		return fmt.Sprintf("native function %q: unreadable arguments", name), false
	}
	var args []any
	if err := json.Unmarshal(argsRaw, &args); err != nil {
		return fmt.Sprintf("native function %q: decode arguments: %v", name, err), false
	}
	if len(args) != len(entry.params) {
		return fmt.Sprintf("native function %q: got %d arguments, want %d", name, len(args), len(entry.params)), false
	}

	result, err := entry.fn(ctx, args)
	if err != nil {
		return err.Error(), false
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("native function %q: encode result: %v", name, err), false
	}
	return string(encoded), true
}
