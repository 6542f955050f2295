//go:build !whisper_cpp

package engine

import (
	"context"

	"github.com/whispergate/whispergate/internal/model"
)

// Default stub (no cgo) so the project builds without the whisper_cpp tag.
func NewWhisperFactory(gpu bool) Factory {
	return func(paths model.Paths) (Context, error) {
		return &stubContext{}, nil
	}
}

type stubContext struct{}

func (s *stubContext) Decode(ctx context.Context, samples []float32, opts Options) (Result, error) {
	return Result{}, nil
}

func (s *stubContext) Close() error { return nil }
