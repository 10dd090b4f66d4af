//go:build cgo && jsonnet_cgo

package libjsonnet

/*
#include <stdlib.h>

struct JsonnetVm;
struct JsonnetJsonValue;

extern const char *jsonnet_json_extract_string(struct JsonnetVm *vm, const struct JsonnetJsonValue *v);
extern int jsonnet_json_extract_number(struct JsonnetVm *vm, const struct JsonnetJsonValue *v, double *out);
extern int jsonnet_json_extract_bool(struct JsonnetVm *vm, const struct JsonnetJsonValue *v);
extern int jsonnet_json_extract_null(struct JsonnetVm *vm, const struct JsonnetJsonValue *v);
extern struct JsonnetJsonValue *jsonnet_json_make_string(struct JsonnetVm *vm, const char *v);
extern struct JsonnetJsonValue *jsonnet_json_make_number(struct JsonnetVm *vm, double v);
extern struct JsonnetJsonValue *jsonnet_json_make_bool(struct JsonnetVm *vm, int v);
extern struct JsonnetJsonValue *jsonnet_json_make_null(struct JsonnetVm *vm);
extern struct JsonnetJsonValue *jsonnet_json_make_array(struct JsonnetVm *vm);
extern void jsonnet_json_array_append(struct JsonnetVm *vm, struct JsonnetJsonValue *arr, struct JsonnetJsonValue *v);
extern struct JsonnetJsonValue *jsonnet_json_make_object(struct JsonnetVm *vm);
extern void jsonnet_json_object_append(struct JsonnetVm *vm, struct JsonnetJsonValue *obj, const char *f, struct JsonnetJsonValue *v);
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"

	gopointer "github.com/mattn/go-pointer"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

// nativeHolder carries one registered callback across the C boundary. It is
// pinned with go-pointer and released when the instance closes.
type nativeHolder struct {
	vm    *C.struct_JsonnetVm
	arity int
	fn    bridge.NativeFunc
}

//export nativeTrampoline
func nativeTrampoline(ctx unsafe.Pointer, argv **C.struct_JsonnetJsonValue, success *C.int) *C.struct_JsonnetJsonValue {
	h := gopointer.Restore(ctx).(*nativeHolder)

	args := make([]any, 0, h.arity)
	for _, arg := range unsafe.Slice(argv, h.arity) {
		args = append(args, h.extract(arg))
	}

	result, err := h.fn(context.Background(), args)
	if err != nil {
		*success = 0
		return h.makeString(err.Error())
	}
	out, err := h.makeValue(result)
	if err != nil {
		*success = 0
		return h.makeString(err.Error())
	}
	*success = 1
	return out
}

// extract converts one argument to its Go form. The C API only exposes
// primitive extraction; composite arguments come through as nil.
func (h *nativeHolder) extract(v *C.struct_JsonnetJsonValue) any {
	if C.jsonnet_json_extract_null(h.vm, v) != 0 {
		return nil
	}
	if s := C.jsonnet_json_extract_string(h.vm, v); s != nil {
		return C.GoString(s)
	}
	var num C.double
	if C.jsonnet_json_extract_number(h.vm, v, &num) != 0 {
		return float64(num)
	}
	switch C.jsonnet_json_extract_bool(h.vm, v) {
	case 0:
		return false
	case 1:
		return true
	}
	return nil
}

func (h *nativeHolder) makeString(s string) *C.struct_JsonnetJsonValue {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return C.jsonnet_json_make_string(h.vm, cs)
}

// makeValue converts a callback result into an evaluator value. Ownership
// of the returned value passes to the library.
func (h *nativeHolder) makeValue(v any) (*C.struct_JsonnetJsonValue, error) {
	switch val := v.(type) {
	case nil:
		return C.jsonnet_json_make_null(h.vm), nil
	case bool:
		b := C.int(0)
		if val {
			b = 1
		}
		return C.jsonnet_json_make_bool(h.vm, b), nil
	case string:
		return h.makeString(val), nil
	case float64:
		return C.jsonnet_json_make_number(h.vm, C.double(val)), nil
	case int:
		return C.jsonnet_json_make_number(h.vm, C.double(val)), nil
	case []any:
		arr := C.jsonnet_json_make_array(h.vm)
		for _, elem := range val {
			ev, err := h.makeValue(elem)
			if err != nil {
				return nil, err
			}
			C.jsonnet_json_array_append(h.vm, arr, ev)
		}
		return arr, nil
	case map[string]any:
		obj := C.jsonnet_json_make_object(h.vm)
		for field, elem := range val {
			ev, err := h.makeValue(elem)
			if err != nil {
				return nil, err
			}
			cf := C.CString(field)
			C.jsonnet_json_object_append(h.vm, obj, cf, ev)
			C.free(unsafe.Pointer(cf))
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("native callback returned unsupported type %T", v)
	}
}
