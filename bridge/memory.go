package bridge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNulByte reports a string that cannot cross a null-terminated
	// boundary. This is a precondition violation, not a truncation.
	ErrNulByte = errors.New("string contains a NUL byte")

	// ErrInvalidPointer reports a guest pointer outside linear memory.
	ErrInvalidPointer = errors.New("pointer outside evaluator memory")
)

// cstringScanLimit bounds the scan for a missing terminator so a corrupted
// result pointer cannot walk the whole linear memory.
const cstringScanLimit = 256 << 20

// guestMemory is the subset of wazero's api.Memory the marshaling layer
// needs. Narrowing it here keeps the copy-in/copy-out helpers testable
// against a plain byte slice.
type guestMemory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// writeCString copies s into evaluator memory as a null-terminated buffer
// allocated via alloc, returning the guest pointer. The marshaling layer
// never frees; releasing inputs and results is centralized in the
// evaluation path so no caller can forget one side of a pair.
func writeCString(mem guestMemory, alloc func(size uint32) (uint32, error), s string) (uint32, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return 0, ErrNulByte
	}
	ptr, err := alloc(uint32(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if !mem.Write(ptr, buf) {
		return 0, fmt.Errorf("write %d bytes at %#x: %w", len(buf), ptr, ErrInvalidPointer)
	}
	return ptr, nil
}

// readCString copies a null-terminated buffer out of evaluator memory.
// The returned slice is owned by the host: it never aliases guest memory,
// so it stays valid after the underlying buffer is released.
func readCString(mem guestMemory, ptr uint32) ([]byte, error) {
	if ptr == 0 {
		return nil, fmt.Errorf("read at NULL: %w", ErrInvalidPointer)
	}
	const chunkSize = 4096
	var out []byte
	for uint32(len(out)) < cstringScanLimit {
		offset := ptr + uint32(len(out))
		chunk, ok := mem.Read(offset, chunkSize)
		if !ok {
			// Near the end of memory a full chunk may not fit; shrink the
			// read until it does. Only zero readable bytes ends the scan.
			chunk = tailRead(mem, offset)
			if chunk == nil {
				if len(out) == 0 {
					return nil, fmt.Errorf("read at %#x: %w", ptr, ErrInvalidPointer)
				}
				return nil, fmt.Errorf("unterminated string at %#x: %w", ptr, ErrInvalidPointer)
			}
		}
		for i, b := range chunk {
			if b == 0 {
				return append(out, chunk[:i]...), nil
			}
		}
		out = append(out, chunk...)
	}
	return nil, fmt.Errorf("unterminated string at %#x: %w", ptr, ErrInvalidPointer)
}

// tailRead reads whatever bytes remain between offset and the end of
// memory, shrinking the request until it fits.
func tailRead(mem guestMemory, offset uint32) []byte {
	for count := uint32(2048); count > 0; count /= 2 {
		if buf, ok := mem.Read(offset, count); ok {
			return buf
		}
	}
	return nil
}
