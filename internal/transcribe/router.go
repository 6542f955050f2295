package transcribe

import "fmt"

// Router resolves a request's provider selector to exactly one backend and
// rejects format/streaming combinations the backend cannot satisfy, before
// any engine work starts. It never downgrades a format silently.
type Router struct {
	backends map[Provider]Backend
	def      Provider
}

func NewRouter(def Provider, backends ...Backend) *Router {
	m := make(map[Provider]Backend, len(backends))
	for _, b := range backends {
		m[b.Provider()] = b
	}
	return &Router{backends: m, def: def}
}

func (r *Router) Resolve(providerField string, f Format, stream bool) (Backend, error) {
	p, err := ParseProvider(providerField, r.def)
	if err != nil {
		return nil, err
	}
	b, ok := r.backends[p]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not configured", ErrInvalidRequest, p)
	}
	if f.Timestamped() && !b.SupportsTimestamps() {
		return nil, fmt.Errorf("%w: %s requires timestamps, provider %q is text-only", ErrUnsupportedCombination, f, p)
	}
	if stream && f.Timestamped() && !b.SupportsSegmentStreaming() {
		return nil, fmt.Errorf("%w: provider %q cannot stream %s segments", ErrUnsupportedCombination, p, f)
	}
	return b, nil
}

// Shutdown tears down every backend's engine resources.
func (r *Router) Shutdown() {
	for _, b := range r.backends {
		b.Shutdown()
	}
}
