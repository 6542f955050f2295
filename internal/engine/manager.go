package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/model"
	"github.com/whispergate/whispergate/internal/status"
)

// minIdle is the enforced floor for the idle-eviction timeout.
const minIdle = 5 * time.Second

// Manager owns the lifecycle of one engine family's contexts. A single mutex
// serializes lifecycle transitions and shared-context decodes: eviction or
// reinitialization can never run concurrently with an in-flight decode.
type Manager struct {
	family   string
	resolver model.Resolver
	factory  Factory
	idle     time.Duration
	sink     status.Sink

	mu      sync.Mutex
	shared  Context
	lastUse time.Time

	created  atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(family string, resolver model.Resolver, factory Factory, idle time.Duration, sink status.Sink) *Manager {
	if idle < minIdle {
		idle = minIdle
	}
	if sink == nil {
		sink = status.Discard()
	}
	m := &Manager{
		family:   family,
		resolver: resolver,
		factory:  factory,
		idle:     idle,
		sink:     sink,
		done:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// DecodeShared runs one decode against the shared context, creating it
// lazily on first use or after an eviction. The decode holds the lifecycle
// lock, so the shared context serves at most one decode at a time.
func (m *Manager) DecodeShared(ctx context.Context, samples []float32, opts Options) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureSharedLocked(); err != nil {
		return Result{}, err
	}
	res, err := m.shared.Decode(ctx, samples, opts)
	m.lastUse = time.Now()
	return res, err
}

// IsolatedContext constructs a throwaway context independent of the shared
// one, for decodes that must not share engine state. The caller owns it and
// must Close it.
func (m *Manager) IsolatedContext() (Context, error) {
	paths, err := m.resolver.ResolveActiveModel()
	if err != nil {
		return nil, err
	}
	c, err := m.factory(paths)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	m.created.Add(1)
	return c, nil
}

// Reinitialize force-destroys the shared context; the next access recreates
// it from the then-active model artifact.
func (m *Manager) Reinitialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroySharedLocked("reinitialize")
}

// Shutdown stops the idle sweeper and destroys any live context.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.done) })
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroySharedLocked("shutdown")
}

// ContextsCreated reports how many contexts this manager has constructed.
func (m *Manager) ContextsCreated() int64 {
	return m.created.Load()
}

func (m *Manager) ensureSharedLocked() error {
	if m.shared != nil {
		m.lastUse = time.Now()
		return nil
	}
	paths, err := m.resolver.ResolveActiveModel()
	if err != nil {
		return err
	}
	c, err := m.factory(paths)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInit, err)
	}
	m.shared = c
	m.lastUse = time.Now()
	m.created.Add(1)
	log.Info().Str("family", m.family).Str("model", paths.BinaryPath).Msg("engine context created")
	m.sink.Publish(status.Event{
		Kind:   status.KindEngineActivated,
		Engine: m.family,
		Model:  filepath.Base(paths.BinaryPath),
	})
	return nil
}

func (m *Manager) destroySharedLocked(reason string) {
	if m.shared == nil {
		return
	}
	if err := m.shared.Close(); err != nil {
		log.Warn().Err(err).Str("family", m.family).Msg("engine context close failed")
	}
	m.shared = nil
	log.Info().Str("family", m.family).Str("reason", reason).Msg("engine context destroyed")
}

// sweep evicts the shared context once it has sat idle past the timeout.
// Eviction is a memory-release policy: the next access recreates the context
// transparently at the cost of re-initialization latency.
func (m *Manager) sweep() {
	interval := m.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shared != nil && time.Since(m.lastUse) >= m.idle {
		m.destroySharedLocked("idle")
		m.sink.Publish(status.Event{Kind: status.KindEngineEvicted, Engine: m.family})
	}
}
