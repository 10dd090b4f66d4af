// Package jsonnet provides the default evaluator engine: the C Jsonnet
// library compiled to a WASI reactor module and embedded in the binary.
//
// The jsonnet.wasm artifact is fetched by internal/tools/download; run
// `go run ./internal/tools/download` once before building.
package jsonnet

import (
	_ "embed"
	"sync"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

//go:embed jsonnet.wasm
var wasmModule []byte

var (
	defaultOnce   sync.Once
	defaultEngine *bridge.Runtime
)

// Default returns the process-wide shared engine. All VMs using it share
// one compiled module; each evaluation still gets a private instance.
func Default() *bridge.Runtime {
	defaultOnce.Do(func() {
		defaultEngine = bridge.NewRuntime(wasmModule)
	})
	return defaultEngine
}

// New returns a fresh engine with its own runtime and compilation state.
// Prefer Default unless isolation of the compiled module itself is needed.
func New() *bridge.Runtime {
	return bridge.NewRuntime(wasmModule)
}
