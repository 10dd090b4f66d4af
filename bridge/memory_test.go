package bridge

import (
	"errors"
	"strings"
	"testing"
)

// fakeMemory is a slice-backed stand-in for the evaluator's linear memory,
// with a trivial bump allocator starting above a null page.
type fakeMemory struct {
	data []byte
	next uint32
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{data: make([]byte, size), next: 16}
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset:end], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:end], v)
	return true
}

func (m *fakeMemory) alloc(size uint32) (uint32, error) {
	if uint64(m.next)+uint64(size) > uint64(len(m.data)) {
		return 0, errors.New("out of fake memory")
	}
	ptr := m.next
	m.next += size
	return ptr, nil
}

func TestWriteReadCStringRoundTrip(t *testing.T) {
	mem := newFakeMemory(1 << 16)

	for _, s := range []string{"", "x", "hello world", `{"foo": std.extVar("foo")}`, "multi\nline\ndiagnostic"} {
		ptr, err := writeCString(mem, mem.alloc, s)
		if err != nil {
			t.Fatalf("writeCString(%q): %v", s, err)
		}
		got, err := readCString(mem, ptr)
		if err != nil {
			t.Fatalf("readCString(%q): %v", s, err)
		}
		if string(got) != s {
			t.Errorf("round trip = %q, want %q", got, s)
		}
	}
}

func TestWriteCStringRejectsNulByte(t *testing.T) {
	mem := newFakeMemory(1 << 12)

	allocCalls := 0
	countingAlloc := func(size uint32) (uint32, error) {
		allocCalls++
		return mem.alloc(size)
	}

	_, err := writeCString(mem, countingAlloc, "bad\x00input")
	if !errors.Is(err, ErrNulByte) {
		t.Fatalf("err = %v, want ErrNulByte", err)
	}
	if allocCalls != 0 {
		t.Errorf("alloc called %d times before precondition check", allocCalls)
	}
}

func TestReadCStringCopiesOutOfGuestMemory(t *testing.T) {
	mem := newFakeMemory(1 << 12)

	ptr, err := writeCString(mem, mem.alloc, "before")
	if err != nil {
		t.Fatal(err)
	}
	got, err := readCString(mem, ptr)
	if err != nil {
		t.Fatal(err)
	}

	// Clobber guest memory; the materialized bytes must be unaffected.
	mem.Write(ptr, []byte("after\x00"))
	if string(got) != "before" {
		t.Errorf("host copy changed with guest memory: %q", got)
	}
}

func TestReadCStringInvalidPointer(t *testing.T) {
	mem := newFakeMemory(64)

	if _, err := readCString(mem, 0); !errors.Is(err, ErrInvalidPointer) {
		t.Errorf("NULL read err = %v, want ErrInvalidPointer", err)
	}
	if _, err := readCString(mem, 1<<20); !errors.Is(err, ErrInvalidPointer) {
		t.Errorf("out-of-range read err = %v, want ErrInvalidPointer", err)
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	mem := newFakeMemory(64)
	for i := range mem.data {
		mem.data[i] = 'a'
	}

	_, err := readCString(mem, 8)
	if err == nil {
		t.Fatal("expected error for unterminated string at end of memory")
	}
	if !strings.Contains(err.Error(), "unterminated") && !errors.Is(err, ErrInvalidPointer) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadCStringTerminatorNearMemoryEnd(t *testing.T) {
	// The terminator sits past the last full-chunk boundary, so the scan
	// finishes on progressively shrinking tail reads.
	mem := newFakeMemory(5000)
	const ptr, terminator = 1000, 4500
	for i := ptr; i < terminator; i++ {
		mem.data[i] = 'a'
	}
	mem.data[terminator] = 0

	got, err := readCString(mem, ptr)
	if err != nil {
		t.Fatalf("readCString: %v", err)
	}
	if len(got) != terminator-ptr {
		t.Errorf("got %d bytes, want %d", len(got), terminator-ptr)
	}

	// Same shape with the terminator on the very last byte of memory.
	mem.data[len(mem.data)-1] = 0
	for i := terminator; i < len(mem.data)-1; i++ {
		mem.data[i] = 'b'
	}
	got, err = readCString(mem, ptr)
	if err != nil {
		t.Fatalf("readCString to last byte: %v", err)
	}
	if len(got) != len(mem.data)-1-ptr {
		t.Errorf("got %d bytes, want %d", len(got), len(mem.data)-1-ptr)
	}
}

func TestReadCStringLongString(t *testing.T) {
	mem := newFakeMemory(1 << 16)

	long := strings.Repeat("abcdefgh", 2048) // crosses several scan chunks
	ptr, err := writeCString(mem, mem.alloc, long)
	if err != nil {
		t.Fatal(err)
	}
	got, err := readCString(mem, ptr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != long {
		t.Errorf("long round trip mismatch: got %d bytes, want %d", len(got), len(long))
	}
}
