package vm

import (
	"time"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

// Option configures a VM at creation time.
type Option func(*VM)

// WithEngine selects the evaluator engine. The default is the embedded
// WebAssembly build shared process-wide.
func WithEngine(engine bridge.Engine) Option {
	return func(v *VM) {
		v.engine = engine
	}
}

// WithTimeout bounds one evaluation. The foreign call itself cannot be
// cancelled; on expiry the worker driving it is abandoned and its private
// evaluator instance closed in the background. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(v *VM) {
		v.timeout = d
	}
}

// WithMaxStack sets the evaluator's maximum stack depth.
func WithMaxStack(n int) Option {
	return func(v *VM) {
		v.maxStack = n
	}
}

// WithMaxTrace sets the maximum number of stack frames in diagnostics.
func WithMaxTrace(n int) Option {
	return func(v *VM) {
		v.maxTrace = n
	}
}
