// Package bridge drives an embedded Jsonnet evaluator through its
// C-compatible entry points and manages the memory that crosses that
// boundary in both directions.
//
// The evaluator itself is a black box: a garbage-collected runtime compiled
// into an embeddable artifact. The bridge owns the calling convention,
// string marshaling, external-variable registration, and the lifetime of
// every evaluator-allocated result buffer. Jsonnet semantics (parsing,
// evaluation, the standard library) are never reimplemented here.
package bridge

import "context"

// NativeFunc is a host function callable from Jsonnet via std.native.
// Arguments arrive decoded from the evaluator's JSON representation; the
// returned value must be JSON-marshalable.
type NativeFunc func(ctx context.Context, args []any) (any, error)

// Engine provides access to one embedded evaluator build.
// Implement this interface to plug in an alternative evaluator artifact
// (the default WebAssembly build, or a natively linked shared library).
type Engine interface {
	// Name returns a unique identifier for this engine (e.g. "wasm", "cgo").
	Name() string

	// NewInstance creates a private evaluator instance. Instances are not
	// safe for concurrent use; callers create one per evaluation and must
	// Close it when done. Concurrent evaluations each hold their own
	// instance and share nothing mutable.
	NewInstance(ctx context.Context) (Instance, error)
}

// Instance is one live copy of the foreign evaluator.
//
// All string-accepting methods follow C-string semantics at the boundary:
// values containing a NUL byte are rejected with ErrNulByte before any
// foreign call is made.
type Instance interface {
	// ExtVar registers an external variable holding a literal string,
	// reachable from Jsonnet as std.extVar(key).
	ExtVar(key, value string) error

	// ExtCode registers an external variable holding Jsonnet source text,
	// evaluated as an expression when std.extVar(key) is accessed.
	ExtCode(key, value string) error

	// TLAVar and TLACode bind top-level arguments when the evaluated
	// program is a function.
	TLAVar(key, value string) error
	TLACode(key, value string) error

	// MaxStack and MaxTrace configure evaluator limits.
	MaxStack(n int) error
	MaxTrace(n int) error

	// NativeCallback makes fn reachable from Jsonnet as
	// std.native(name)(params...).
	NativeCallback(name string, params []string, fn NativeFunc) error

	// EvaluateSnippet runs the evaluator over code, blocking until it
	// returns. The foreign call is opaque and non-cancellable; there are no
	// partial results. failed reports that payload is an evaluator
	// diagnostic (returned verbatim) rather than rendered JSON. A non-nil
	// err is a bridge-level fault, never a Jsonnet evaluation failure.
	EvaluateSnippet(ctx context.Context, filename, code string) (payload string, failed bool, err error)

	// Version reports the embedded evaluator library version.
	Version(ctx context.Context) (string, error)

	// Close destroys the foreign evaluator state. Safe to call more than
	// once; all other methods fail after the first Close.
	Close(ctx context.Context) error
}
