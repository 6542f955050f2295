package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/whispergate/whispergate/internal/model"
	"github.com/whispergate/whispergate/internal/status"
)

type fakeContext struct {
	mu     sync.Mutex
	closed bool
	calls  int
}

func (f *fakeContext) Decode(ctx context.Context, samples []float32, opts Options) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return Result{}, errors.New("decode on closed context")
	}
	f.calls++
	return Result{Text: "ok"}, nil
}

func (f *fakeContext) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fakeFactory(contexts *[]*fakeContext) Factory {
	return func(paths model.Paths) (Context, error) {
		c := &fakeContext{}
		*contexts = append(*contexts, c)
		return c, nil
	}
}

func readyResolver() model.Resolver {
	return model.NewReadyTracker(model.Paths{BinaryPath: "model.bin"})
}

func newTestManager(t *testing.T, factory Factory) *Manager {
	t.Helper()
	m := NewManager("test", readyResolver(), factory, time.Minute, status.Discard())
	t.Cleanup(m.Shutdown)
	return m
}

func TestSharedContextReused(t *testing.T) {
	var contexts []*fakeContext
	m := newTestManager(t, fakeFactory(&contexts))

	for i := 0; i < 3; i++ {
		if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
			t.Fatalf("DecodeShared: %v", err)
		}
	}
	if got := m.ContextsCreated(); got != 1 {
		t.Fatalf("expected 1 context creation, got %d", got)
	}
	if contexts[0].calls != 3 {
		t.Fatalf("expected 3 decodes on the shared context, got %d", contexts[0].calls)
	}
}

func TestIdleEvictionRecreatesOnNextUse(t *testing.T) {
	var contexts []*fakeContext
	m := newTestManager(t, fakeFactory(&contexts))

	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared: %v", err)
	}

	// Backdate the last access past the idle timeout and run one sweep.
	m.mu.Lock()
	m.lastUse = time.Now().Add(-2 * m.idle)
	m.mu.Unlock()
	m.sweepOnce()

	if !contexts[0].closed {
		t.Fatal("expected idle sweep to close the shared context")
	}

	// Eviction is transparent: the next decode recreates the context.
	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared after eviction: %v", err)
	}
	if got := m.ContextsCreated(); got != 2 {
		t.Fatalf("expected a second creation after eviction, got %d", got)
	}
}

func TestSweepKeepsActiveContext(t *testing.T) {
	var contexts []*fakeContext
	m := newTestManager(t, fakeFactory(&contexts))

	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared: %v", err)
	}
	m.sweepOnce()
	if contexts[0].closed {
		t.Fatal("sweep evicted a recently used context")
	}
}

func TestReinitializeDestroysShared(t *testing.T) {
	var contexts []*fakeContext
	m := newTestManager(t, fakeFactory(&contexts))

	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared: %v", err)
	}
	m.Reinitialize()
	if !contexts[0].closed {
		t.Fatal("expected reinitialize to close the shared context")
	}
	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared after reinitialize: %v", err)
	}
	if got := m.ContextsCreated(); got != 2 {
		t.Fatalf("expected lazy recreation, got %d creations", got)
	}
}

func TestIsolatedContextIndependent(t *testing.T) {
	var contexts []*fakeContext
	m := newTestManager(t, fakeFactory(&contexts))

	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared: %v", err)
	}
	iso, err := m.IsolatedContext()
	if err != nil {
		t.Fatalf("IsolatedContext: %v", err)
	}
	if _, err := iso.Decode(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("isolated decode: %v", err)
	}
	iso.Close()

	if contexts[0].closed {
		t.Fatal("closing the isolated context must not touch the shared one")
	}
	if got := m.ContextsCreated(); got != 2 {
		t.Fatalf("expected 2 creations (shared + isolated), got %d", got)
	}
}

func TestModelNotReady(t *testing.T) {
	var contexts []*fakeContext
	m := NewManager("test", model.NewTracker(), fakeFactory(&contexts), time.Minute, status.Discard())
	t.Cleanup(m.Shutdown)

	_, err := m.DecodeShared(context.Background(), []float32{0}, Options{})
	if !errors.Is(err, model.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if len(contexts) != 0 {
		t.Fatal("no context may be constructed while the model is not ready")
	}
}

func TestFactoryFailureIsInitError(t *testing.T) {
	m := NewManager("test", readyResolver(), func(model.Paths) (Context, error) {
		return nil, errors.New("corrupt artifact")
	}, time.Minute, status.Discard())
	t.Cleanup(m.Shutdown)

	_, err := m.DecodeShared(context.Background(), []float32{0}, Options{})
	if !errors.Is(err, ErrInit) {
		t.Fatalf("expected ErrInit, got %v", err)
	}
}

func TestShutdownClosesContext(t *testing.T) {
	var contexts []*fakeContext
	m := NewManager("test", readyResolver(), fakeFactory(&contexts), time.Minute, status.Discard())

	if _, err := m.DecodeShared(context.Background(), []float32{0}, Options{}); err != nil {
		t.Fatalf("DecodeShared: %v", err)
	}
	m.Shutdown()
	if !contexts[0].closed {
		t.Fatal("expected shutdown to close the shared context")
	}
}
