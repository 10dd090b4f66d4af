// Package vm provides the public Jsonnet evaluation API: a VM accumulates
// external variables, top-level arguments, and native callbacks, then
// drives the embedded evaluator through the bridge for each evaluation.
//
// A VM is cheap; its state is a plain table that is replayed against a
// fresh, private evaluator instance on every evaluation. A VM is not safe
// for concurrent mutation, but any number of VMs may evaluate in parallel
// on distinct goroutines without cross-talk.
package vm

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
	"github.com/wasmjsonnet/wasmjsonnet/engine/jsonnet"
)

type nativeCallback struct {
	name   string
	params []string
	fn     bridge.NativeFunc
}

// VM evaluates Jsonnet programs against a set of external inputs.
type VM struct {
	engine bridge.Engine

	ext     varTable
	tla     varTable
	natives []nativeCallback

	maxStack int
	maxTrace int
	timeout  time.Duration
}

// New creates a VM. With no options it uses the process-wide embedded
// WebAssembly evaluator.
func New(opts ...Option) *VM {
	v := &VM{}
	for _, opt := range opts {
		opt(v)
	}
	if v.engine == nil {
		v.engine = jsonnet.Default()
	}
	return v
}

// ExtVar binds a literal string to std.extVar(key). Re-binding an existing
// key replaces its value (last write wins).
func (v *VM) ExtVar(key, value string) {
	v.ext.set(Variable{Name: key, Value: value, Kind: Str})
}

// ExtCode binds Jsonnet source text to std.extVar(key); the expression is
// evaluated when accessed. Last write wins on duplicate keys.
func (v *VM) ExtCode(key, value string) {
	v.ext.set(Variable{Name: key, Value: value, Kind: Code})
}

// TLAVar binds a literal string top-level argument, applied when the
// evaluated program is a function.
func (v *VM) TLAVar(key, value string) {
	v.tla.set(Variable{Name: key, Value: value, Kind: Str})
}

// TLACode binds a Jsonnet expression as a top-level argument.
func (v *VM) TLACode(key, value string) {
	v.tla.set(Variable{Name: key, Value: value, Kind: Code})
}

// NativeCallback makes fn reachable as std.native(name)(params...).
// Last write wins on duplicate names, like external variables.
func (v *VM) NativeCallback(name string, params []string, fn bridge.NativeFunc) {
	for i := range v.natives {
		if v.natives[i].name == name {
			v.natives[i] = nativeCallback{name: name, params: params, fn: fn}
			return
		}
	}
	v.natives = append(v.natives, nativeCallback{name: name, params: params, fn: fn})
}

// EvaluateSnippet evaluates source, reporting errors against filename.
// It returns the rendered JSON text, or one of the typed errors in this
// package: *EvaluationError for Jsonnet failures, *InvalidInputError for
// violated preconditions, *EncodingError, *InitializationError, or
// *TimeoutError. The call blocks until the evaluator returns or the
// configured timeout abandons it.
func (v *VM) EvaluateSnippet(ctx context.Context, filename, source string) (string, error) {
	if err := v.validate(filename, source); err != nil {
		return "", err
	}

	inst, err := v.engine.NewInstance(ctx)
	if err != nil {
		return "", &InitializationError{Err: err}
	}

	if err := v.configure(inst); err != nil {
		inst.Close(ctx)
		return "", wrapBridgeError(err)
	}

	payload, failed, err := v.run(ctx, inst, filename, source)
	var te *TimeoutError
	if errors.As(err, &te) {
		// run already tears the instance down in the background; closing
		// here could block on an engine that waits for the foreign call.
		return "", err
	}
	inst.Close(ctx)
	if err != nil {
		return "", wrapBridgeError(err)
	}
	if failed {
		return "", &EvaluationError{Diagnostic: payload}
	}
	return payload, nil
}

// EvaluateFile evaluates the Jsonnet program stored at path.
func (v *VM) EvaluateFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return v.EvaluateSnippet(ctx, path, string(data))
}

// Version reports the embedded evaluator library version.
func (v *VM) Version(ctx context.Context) (string, error) {
	inst, err := v.engine.NewInstance(ctx)
	if err != nil {
		return "", &InitializationError{Err: err}
	}
	defer inst.Close(ctx)
	return inst.Version(ctx)
}

// validate enforces every bridge precondition locally, so invalid input is
// rejected before anything crosses the boundary.
func (v *VM) validate(filename, source string) error {
	if strings.IndexByte(filename, 0) >= 0 {
		return &InvalidInputError{Reason: "filename contains NUL byte"}
	}
	if strings.IndexByte(source, 0) >= 0 {
		return &InvalidInputError{Reason: "source contains NUL byte"}
	}
	if err := v.ext.validate("external"); err != nil {
		return err
	}
	if err := v.tla.validate("top-level"); err != nil {
		return err
	}
	for _, nc := range v.natives {
		if nc.name == "" {
			return &InvalidInputError{Reason: "native callback with empty name"}
		}
	}
	return nil
}

// configure replays the VM's table against a fresh instance. Registration
// is issued in table order; results never depend on that order, since each
// name is independently addressable in the evaluator.
func (v *VM) configure(inst bridge.Instance) error {
	if v.maxStack > 0 {
		if err := inst.MaxStack(v.maxStack); err != nil {
			return err
		}
	}
	if v.maxTrace > 0 {
		if err := inst.MaxTrace(v.maxTrace); err != nil {
			return err
		}
	}
	for _, nc := range v.natives {
		if err := inst.NativeCallback(nc.name, nc.params, nc.fn); err != nil {
			return err
		}
	}
	for _, ev := range v.ext.ordered() {
		var err error
		if ev.Kind == Code {
			err = inst.ExtCode(ev.Name, ev.Value)
		} else {
			err = inst.ExtVar(ev.Name, ev.Value)
		}
		if err != nil {
			return err
		}
	}
	for _, tv := range v.tla.ordered() {
		var err error
		if tv.Kind == Code {
			err = inst.TLACode(tv.Name, tv.Value)
		} else {
			err = inst.TLAVar(tv.Name, tv.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// run issues the blocking foreign call, optionally bounded by the timeout.
func (v *VM) run(ctx context.Context, inst bridge.Instance, filename, source string) (string, bool, error) {
	if v.timeout <= 0 {
		return inst.EvaluateSnippet(ctx, filename, source)
	}

	type outcome struct {
		payload string
		failed  bool
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		payload, failed, err := inst.EvaluateSnippet(ctx, filename, source)
		ch <- outcome{payload: payload, failed: failed, err: err}
	}()

	timer := time.NewTimer(v.timeout)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.payload, o.failed, o.err
	case <-timer.C:
		// The foreign call is not preemptible. Abandon the worker; closing
		// the instance is safe because nothing else shares it, and it
		// unblocks the worker where the engine supports it.
		go inst.Close(context.Background())
		return "", false, &TimeoutError{After: v.timeout}
	}
}

// wrapBridgeError maps bridge sentinels onto the public taxonomy.
func wrapBridgeError(err error) error {
	switch {
	case errors.Is(err, bridge.ErrNulByte):
		return &InvalidInputError{Reason: err.Error()}
	case errors.Is(err, bridge.ErrInvalidEncoding):
		return &EncodingError{Err: err}
	default:
		return err
	}
}
