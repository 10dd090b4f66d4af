package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
)

// registration records one configuration call issued to a mock instance, in
// the order it arrived.
type registration struct {
	op    string // "ext-str", "ext-code", "tla-str", "tla-code", "native"
	key   string
	value string
}

// mockEngine implements bridge.Engine for testing VM orchestration without
// the overhead of the real WebAssembly evaluator.
type mockEngine struct {
	mu        sync.Mutex
	failInits int // NewInstance calls to fail before succeeding
	instances []*mockInstance

	// template copied into every new instance
	payload string
	failed  bool
	evalErr error
	block   chan struct{} // if non-nil, EvaluateSnippet waits on it
}

func (e *mockEngine) Name() string { return "mock" }

func (e *mockEngine) NewInstance(ctx context.Context) (bridge.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failInits > 0 {
		e.failInits--
		return nil, fmt.Errorf("mock runtime unavailable")
	}
	inst := &mockInstance{
		payload: e.payload,
		failed:  e.failed,
		evalErr: e.evalErr,
		block:   e.block,
		closed:  make(chan struct{}),
	}
	e.instances = append(e.instances, inst)
	return inst, nil
}

func (e *mockEngine) last() *mockInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.instances) == 0 {
		return nil
	}
	return e.instances[len(e.instances)-1]
}

type mockInstance struct {
	mu   sync.Mutex
	regs []registration

	maxStack int
	maxTrace int

	payload string
	failed  bool
	evalErr error
	block   chan struct{}

	evalFilename string
	evalSource   string

	closeCount int
	closed     chan struct{}
}

func (i *mockInstance) record(op, key, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.regs = append(i.regs, registration{op: op, key: key, value: value})
}

func (i *mockInstance) ExtVar(key, value string) error  { i.record("ext-str", key, value); return nil }
func (i *mockInstance) ExtCode(key, value string) error { i.record("ext-code", key, value); return nil }
func (i *mockInstance) TLAVar(key, value string) error  { i.record("tla-str", key, value); return nil }
func (i *mockInstance) TLACode(key, value string) error { i.record("tla-code", key, value); return nil }

func (i *mockInstance) MaxStack(n int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.maxStack = n
	return nil
}

func (i *mockInstance) MaxTrace(n int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.maxTrace = n
	return nil
}

func (i *mockInstance) NativeCallback(name string, params []string, fn bridge.NativeFunc) error {
	i.record("native", name, fmt.Sprint(params))
	return nil
}

func (i *mockInstance) EvaluateSnippet(ctx context.Context, filename, code string) (string, bool, error) {
	i.mu.Lock()
	i.evalFilename = filename
	i.evalSource = code
	block := i.block
	i.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-i.closed:
		}
	}
	return i.payload, i.failed, i.evalErr
}

func (i *mockInstance) Version(ctx context.Context) (string, error) {
	return "v0.0.0-mock", nil
}

func (i *mockInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closeCount++
	if i.closeCount == 1 {
		close(i.closed)
	}
	return nil
}

func (i *mockInstance) registrations() []registration {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]registration, len(i.regs))
	copy(out, i.regs)
	return out
}
