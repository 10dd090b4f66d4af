package vm

import (
	"fmt"
	"time"
)

// EvaluationError reports that the Jsonnet program failed to parse or
// evaluate. It is a normal, expected outcome, never a bridge fault: fix the
// program or its inputs and evaluate again. Diagnostic carries the
// evaluator's message byte-for-byte, including any multi-line stack
// context, with no reformatting.
type EvaluationError struct {
	Diagnostic string
}

func (e *EvaluationError) Error() string {
	return e.Diagnostic
}

// InvalidInputError reports a precondition violated before any foreign
// call: an empty variable name, or a NUL byte in a value that must cross a
// null-terminated boundary. The offending input never reaches the
// evaluator.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// EncodingError reports an evaluator payload that could not be interpreted
// as valid text. By the time it is returned the offending foreign buffer
// has already been released.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return "decode evaluator payload: " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// InitializationError reports that the foreign runtime failed to
// initialize. Fatal for the in-flight call; a later call retries
// initialization, since the cause may be transient.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return "initialize evaluator: " + e.Err.Error()
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports an evaluation abandoned after WithTimeout elapsed.
// The foreign call is not preemptible, so the worker driving it is
// abandoned rather than killed; its private evaluator instance is closed in
// the background.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation abandoned after %v", e.After)
}
