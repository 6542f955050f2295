// Package model is the boundary to the external model-acquisition
// collaborator. The serving core never downloads or verifies artifacts; it
// only asks where the active model lives and whether it is ready.
package model

import (
	"errors"
	"sync"
)

// Paths locates a resolved model artifact on disk.
type Paths struct {
	BinaryPath   string
	AuxiliaryDir string
}

// ErrNotReady is returned while no model artifact has been announced ready.
var ErrNotReady = errors.New("model not ready")

type Resolver interface {
	ResolveActiveModel() (Paths, error)
}

// Tracker is a Resolver fed by the collaborator's readiness signals.
type Tracker struct {
	mu      sync.RWMutex
	paths   Paths
	ready   bool
	failure error
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// NewReadyTracker returns a tracker already holding a ready artifact.
func NewReadyTracker(p Paths) *Tracker {
	t := &Tracker{}
	t.ModelReady(p)
	return t
}

// ModelReady records the active artifact and clears any previous failure.
func (t *Tracker) ModelReady(p Paths) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths = p
	t.ready = true
	t.failure = nil
}

// ModelPreparationFailed marks the artifact unavailable until the next
// ModelReady signal.
func (t *Tracker) ModelPreparationFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = false
	t.failure = err
}

func (t *Tracker) ResolveActiveModel() (Paths, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ready {
		if t.failure != nil {
			return Paths{}, errors.Join(ErrNotReady, t.failure)
		}
		return Paths{}, ErrNotReady
	}
	return t.paths, nil
}
