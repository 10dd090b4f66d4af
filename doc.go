// Package wasmjsonnet evaluates Jsonnet programs with the C Jsonnet
// library compiled to WebAssembly and embedded in the binary, so no cgo or
// system library is required.
//
// # Overview
//
// Each evaluation runs in a private evaluator instance inside a sandboxed
// WASM module; the compiled module is shared process-wide, the state is
// not. Evaluations on distinct VMs may run concurrently.
//
// # Basic Usage
//
//	v := vm.New()
//	v.ExtVar("env", "production")
//	out, err := v.EvaluateSnippet(ctx, "config.jsonnet",
//	    `{env: std.extVar("env")}`)
//
// Or, for one-shot evaluation without configuring a VM:
//
//	out, err := wasmjsonnet.Evaluate(ctx, `{answer: 6 * 7}`)
//
// # Native Engine
//
// Builds with CGO_ENABLED=1 and -tags jsonnet_cgo can link the system
// libjsonnet instead:
//
//	v := vm.New(vm.WithEngine(libjsonnet.New()))
//
// See the [vm], [bridge], [engine/jsonnet], and [engine/libjsonnet]
// packages for detailed API documentation.
package wasmjsonnet
