package bridge

import (
	"errors"
	"testing"
)

// releaseTracker counts release calls, standing in for the evaluator's
// allocator so tests can verify the one-release-per-buffer invariant.
type releaseTracker struct {
	calls int
	fail  error
}

func (r *releaseTracker) free(ptr uint32) error {
	r.calls++
	return r.fail
}

func TestForeignBufferReleaseExactlyOnce(t *testing.T) {
	tracker := &releaseTracker{}
	buf := newForeignBuffer(42, tracker.free)

	if err := buf.release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := buf.release(); !errors.Is(err, ErrBufferReleased) {
		t.Fatalf("second release err = %v, want ErrBufferReleased", err)
	}
	if tracker.calls != 1 {
		t.Errorf("free called %d times, want 1", tracker.calls)
	}
}

func TestForeignBufferNullPointer(t *testing.T) {
	tracker := &releaseTracker{}
	buf := newForeignBuffer(0, tracker.free)

	if err := buf.release(); err != nil {
		t.Fatalf("release of NULL buffer: %v", err)
	}
	if tracker.calls != 0 {
		t.Errorf("free called %d times for NULL pointer, want 0", tracker.calls)
	}
}

func TestMaterializeReleasesOnSuccess(t *testing.T) {
	mem := newFakeMemory(1 << 12)
	ptr, err := writeCString(mem, mem.alloc, `{"ok": true}`)
	if err != nil {
		t.Fatal(err)
	}

	tracker := &releaseTracker{}
	got, err := materializeCString(mem, newForeignBuffer(ptr, tracker.free))
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"ok": true}` {
		t.Errorf("payload = %q", got)
	}
	if tracker.calls != 1 {
		t.Errorf("free called %d times, want 1", tracker.calls)
	}
}

func TestMaterializeReleasesOnReadFailure(t *testing.T) {
	mem := newFakeMemory(64)

	tracker := &releaseTracker{}
	_, err := materializeCString(mem, newForeignBuffer(1<<20, tracker.free))
	if !errors.Is(err, ErrInvalidPointer) {
		t.Fatalf("err = %v, want ErrInvalidPointer", err)
	}
	if tracker.calls != 1 {
		t.Errorf("free called %d times on read failure, want 1", tracker.calls)
	}
}

func TestMaterializeReleasesBeforeEncodingError(t *testing.T) {
	mem := newFakeMemory(1 << 12)
	ptr, err := mem.alloc(4)
	if err != nil {
		t.Fatal(err)
	}
	mem.Write(ptr, []byte{0xff, 0xfe, 0xfd, 0x00})

	tracker := &releaseTracker{}
	_, err = materializeCString(mem, newForeignBuffer(ptr, tracker.free))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("err = %v, want ErrInvalidEncoding", err)
	}
	if tracker.calls != 1 {
		t.Errorf("free called %d times before encoding error, want 1", tracker.calls)
	}
}

func TestMaterializeSurfacesReleaseFailure(t *testing.T) {
	mem := newFakeMemory(1 << 12)
	ptr, err := writeCString(mem, mem.alloc, "fine")
	if err != nil {
		t.Fatal(err)
	}

	releaseErr := errors.New("allocator unavailable")
	tracker := &releaseTracker{fail: releaseErr}
	_, err = materializeCString(mem, newForeignBuffer(ptr, tracker.free))
	if !errors.Is(err, releaseErr) {
		t.Fatalf("err = %v, want release failure", err)
	}
}
