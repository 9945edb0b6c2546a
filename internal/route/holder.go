package route

import "sync/atomic"

// Holder publishes the active router. Config reloads build a new Router and
// swap it in; callers pick up the new chain on their next turn while in-flight
// turns finish on the chain they started with.
type Holder struct {
	current atomic.Pointer[Router]
}

// NewHolder creates a Holder publishing r.
func NewHolder(r *Router) *Holder {
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Current returns the active router.
func (h *Holder) Current() *Router {
	return h.current.Load()
}

// Swap atomically replaces the active router.
func (h *Holder) Swap(r *Router) {
	h.current.Store(r)
}
