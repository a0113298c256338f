package gateway

import "sync"

// Registry maps live connections to the packet topics they watch. It is
// local to one process; cross-process fan-out happens on the bus, and each
// process routes only to its own connections.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
	conns  map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Subscribe(connID, packetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.topics[packetID] == nil {
		r.topics[packetID] = make(map[string]struct{})
	}
	r.topics[packetID][connID] = struct{}{}
	if r.conns[connID] == nil {
		r.conns[connID] = make(map[string]struct{})
	}
	r.conns[connID][packetID] = struct{}{}
}

func (r *Registry) Unsubscribe(connID, packetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(connID, packetID)
}

// Drop releases every subscription held by a connection. Called on
// disconnect so no registration outlives its connection.
func (r *Registry) Drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for packetID := range r.conns[connID] {
		r.drop(connID, packetID)
	}
}

func (r *Registry) drop(connID, packetID string) {
	if set := r.topics[packetID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.topics, packetID)
		}
	}
	if set := r.conns[connID]; set != nil {
		delete(set, packetID)
		if len(set) == 0 {
			delete(r.conns, connID)
		}
	}
}

// Connections returns the ids of connections subscribed to a packet.
func (r *Registry) Connections(packetID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.topics[packetID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Topics returns the packet ids a connection is subscribed to.
func (r *Registry) Topics(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[connID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
