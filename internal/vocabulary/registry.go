package vocabulary

import "sync/atomic"

// Registry publishes the current vocabulary snapshot. Readers call Current
// once per request; Swap replaces the snapshot for later readers without
// affecting those already holding the old one.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry holding initial.
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	r.current.Store(initial)
	return r
}

// Current returns the active snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (r *Registry) Swap(next *Snapshot) *Snapshot {
	return r.current.Swap(next)
}
