// Package engine owns backend engine contexts: expensive, non-reentrant
// handles bound to one model artifact. Callers never hold a context; they
// borrow one decode call through the Manager.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/whispergate/whispergate/internal/model"
)

// ErrInit marks a context that could not be constructed from its artifact.
var ErrInit = errors.New("engine init failed")

// Options tunes a single decode call. Temperature is informational; neither
// backend requires it.
type Options struct {
	Language    string
	Prompt      string
	Temperature float64
}

type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type Result struct {
	Text     string
	Segments []Segment
}

// Context is a loaded, ready-to-decode engine instance.
type Context interface {
	Decode(ctx context.Context, samples []float32, opts Options) (Result, error)
	Close() error
}

// Factory constructs a Context from resolved model artifact paths.
type Factory func(paths model.Paths) (Context, error)
