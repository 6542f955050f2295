package transcribe

import (
	"context"

	"github.com/whispergate/whispergate/internal/engine"
)

// Backend is a capability-tagged engine family. Capability checks happen in
// the router; nothing downstream branches on provider names.
type Backend interface {
	Provider() Provider
	// SupportsTimestamps reports whether decodes carry real segment timing.
	SupportsTimestamps() bool
	// SupportsSegmentStreaming reports whether incremental per-segment
	// emission is possible, as opposed to whole-result-only streaming.
	SupportsSegmentStreaming() bool

	// DecodeChunk decodes one chunk of normalized audio.
	DecodeChunk(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error)
	// DecodeWhole hands the full audio to the engine in one call; the engine
	// may chunk internally.
	DecodeWhole(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error)

	Shutdown()
}

type whisperBackend struct {
	mgr      *engine.Manager
	isolated bool
}

// NewWhisperBackend wraps the whisper engine family. With isolated set,
// chunk decodes each run in a throwaway context so no engine state bleeds
// between unrelated chunks, at the cost of duplicate model residency.
func NewWhisperBackend(mgr *engine.Manager, isolated bool) Backend {
	return &whisperBackend{mgr: mgr, isolated: isolated}
}

func (b *whisperBackend) Provider() Provider { return ProviderWhisper }
func (b *whisperBackend) SupportsTimestamps() bool { return true }
func (b *whisperBackend) SupportsSegmentStreaming() bool { return true }

func (b *whisperBackend) DecodeChunk(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	if b.isolated {
		c, err := b.mgr.IsolatedContext()
		if err != nil {
			return engine.Result{}, err
		}
		defer c.Close()
		return c.Decode(ctx, samples, opts)
	}
	return b.mgr.DecodeShared(ctx, samples, opts)
}

func (b *whisperBackend) DecodeWhole(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	return b.mgr.DecodeShared(ctx, samples, opts)
}

func (b *whisperBackend) Shutdown() { b.mgr.Shutdown() }

type fluidBackend struct {
	mgr *engine.Manager
}

// NewFluidBackend wraps the fluid engine family: text-only output, no true
// timestamps, whole-result streaming only.
func NewFluidBackend(mgr *engine.Manager) Backend {
	return &fluidBackend{mgr: mgr}
}

func (b *fluidBackend) Provider() Provider { return ProviderFluid }
func (b *fluidBackend) SupportsTimestamps() bool { return false }
func (b *fluidBackend) SupportsSegmentStreaming() bool { return false }

func (b *fluidBackend) DecodeChunk(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	return b.mgr.DecodeShared(ctx, samples, opts)
}

func (b *fluidBackend) DecodeWhole(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	return b.mgr.DecodeShared(ctx, samples, opts)
}

func (b *fluidBackend) Shutdown() { b.mgr.Shutdown() }
