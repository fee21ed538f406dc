package identity

import "sync"

// Registry maps transient connection handles to the durable guest IDs that
// survive reconnects. A guest that reappears under a new connection keeps its
// durable ID, and the newest connection always wins the reverse mapping.
type Registry struct {
	mu            sync.RWMutex
	durableByConn map[string]string
	latestByGuest map[string]string
}

// returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		durableByConn: make(map[string]string),
		latestByGuest: make(map[string]string),
	}
}

// records the mapping in both directions, overwriting any previous
// connection for the same durable ID
func (r *Registry) Bind(connHandle, durableID string) {
	if connHandle == "" || durableID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.durableByConn[connHandle] = durableID
	r.latestByGuest[durableID] = connHandle
}

// returns the durable ID bound to a connection handle, or ""
func (r *Registry) Resolve(connHandle string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.durableByConn[connHandle]
}

// returns the most recent live connection handle for a durable ID, or ""
func (r *Registry) LatestHandle(durableID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latestByGuest[durableID]
}

// removes the connection's forward edge. The reverse edge is cleared only if
// this handle is still the latest for its durable ID; the durable ID itself
// is never forgotten, a future connection may bind it again.
func (r *Registry) Unbind(connHandle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	durableID, ok := r.durableByConn[connHandle]
	if !ok {
		return
	}

	delete(r.durableByConn, connHandle)

	if r.latestByGuest[durableID] == connHandle {
		delete(r.latestByGuest, durableID)
	}
}

// reports whether the handle is the authoritative connection for its durable ID
func (r *Registry) IsLatest(connHandle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	durableID, ok := r.durableByConn[connHandle]
	if !ok {
		return false
	}

	return r.latestByGuest[durableID] == connHandle
}
