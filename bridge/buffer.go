package bridge

import (
	"errors"
	"unicode/utf8"
)

// ErrBufferReleased reports a second release of the same foreign buffer.
var ErrBufferReleased = errors.New("foreign buffer already released")

// foreignBuffer owns one evaluator-allocated result buffer from the moment
// the foreign call returns until release. Exactly one release is issued per
// buffer; the pointer is never dereferenced afterwards.
type foreignBuffer struct {
	ptr      uint32
	free     func(ptr uint32) error
	released bool
}

func newForeignBuffer(ptr uint32, free func(ptr uint32) error) *foreignBuffer {
	return &foreignBuffer{ptr: ptr, free: free}
}

// release returns the buffer to the evaluator's allocator. The released
// flag flips before the free call so a failing allocator cannot cause a
// double free on a retry.
func (b *foreignBuffer) release() error {
	if b.released {
		return ErrBufferReleased
	}
	b.released = true
	if b.ptr == 0 {
		return nil
	}
	return b.free(b.ptr)
}

// materializeCString copies the buffer's bytes into a host-owned string and
// releases the buffer. The release happens unconditionally: on a read
// failure, and before the UTF-8 check, so no error path can leak foreign
// memory and no returned string can alias it.
func materializeCString(mem guestMemory, buf *foreignBuffer) (string, error) {
	raw, readErr := readCString(mem, buf.ptr)
	if err := buf.release(); err != nil {
		return "", err
	}
	if readErr != nil {
		return "", readErr
	}
	if !utf8.Valid(raw) {
		return "", ErrInvalidEncoding
	}
	return string(raw), nil
}

// ErrInvalidEncoding reports an evaluator payload that is not valid UTF-8.
// It is only ever returned after the offending buffer has been released.
var ErrInvalidEncoding = errors.New("evaluator returned invalid UTF-8")
