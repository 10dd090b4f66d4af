//go:build !cgo || !jsonnet_cgo

package libjsonnet

import (
	"context"
	"errors"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

// ErrNotBuilt reports that the binary was compiled without the native
// library. Rebuild with CGO_ENABLED=1 and -tags jsonnet_cgo to enable it.
var ErrNotBuilt = errors.New("libjsonnet: built without cgo and the jsonnet_cgo tag")

// Engine is the stub standing in for the native engine.
type Engine struct{}

// New returns the stub engine. Its instances always fail to initialize.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string { return "cgo" }

func (e *Engine) NewInstance(ctx context.Context) (bridge.Instance, error) {
	return nil, ErrNotBuilt
}
