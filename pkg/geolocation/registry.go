package geolocation

import "sync"

// Registry maps request ids to their live contexts. It is the single source
// of truth for whether a request is still active.
type Registry struct {
	mu       sync.Mutex
	contexts map[RequestID]*RequestContext
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[RequestID]*RequestContext)}
}

// Put inserts rc, returning the context it replaced, if any.
func (r *Registry) Put(rc *RequestContext) *RequestContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.contexts[rc.ID]
	r.contexts[rc.ID] = rc
	if prev == rc {
		return nil
	}
	return prev
}

// Get returns the context registered under id.
func (r *Registry) Get(id RequestID) (*RequestContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.contexts[id]
	return rc, ok
}

// Remove deletes and returns the context under id. Removing an absent id is a no-op.
func (r *Registry) Remove(id RequestID) *RequestContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc := r.contexts[id]
	delete(r.contexts, id)
	return rc
}

// RemoveIf deletes rc only if it is still the context registered under its id.
func (r *Registry) RemoveIf(rc *RequestContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contexts[rc.ID] != rc {
		return false
	}
	delete(r.contexts, rc.ID)
	return true
}

// Contains reports whether rc itself (not merely its id) is registered.
func (r *Registry) Contains(rc *RequestContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contexts[rc.ID] == rc
}

// Drain removes and returns every live context.
func (r *Registry) Drain() []*RequestContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RequestContext, 0, len(r.contexts))
	for id, rc := range r.contexts {
		out = append(out, rc)
		delete(r.contexts, id)
	}
	return out
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}
