package wasmjsonnet

import (
	"context"

	"github.com/wasmjsonnet/wasmjsonnet/vm"
)

// Evaluate runs one Jsonnet snippet with default settings and returns the
// rendered JSON. Configure a vm.VM directly for external variables,
// top-level arguments, or native callbacks.
func Evaluate(ctx context.Context, source string) (string, error) {
	return vm.New().EvaluateSnippet(ctx, "snippet.jsonnet", source)
}

// EvaluateFile runs the Jsonnet program stored at path.
func EvaluateFile(ctx context.Context, path string) (string, error) {
	return vm.New().EvaluateFile(ctx, path)
}

// Version reports the embedded Jsonnet library version.
func Version(ctx context.Context) (string, error) {
	return vm.New().Version(ctx)
}
