// Package libjsonnet provides an alternative evaluator engine that links
// the native C Jsonnet library through cgo instead of running the
// WebAssembly build. It is compiled only with the jsonnet_cgo build tag;
// without it the package builds as a stub whose instances fail with a
// descriptive error.
package libjsonnet
