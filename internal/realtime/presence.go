package realtime

import "sync"

// Registry tracks which users currently hold live connections. A user
// appears in the registry iff they have at least one open connection;
// a user may hold several (multiple devices).
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[*Conn]struct{})}
}

func (r *Registry) Register(userID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[userID] == nil {
		r.users[userID] = make(map[*Conn]struct{})
	}
	r.users[userID][c] = struct{}{}
}

// Unregister is idempotent; removing the last connection for a user
// deletes the presence entry entirely.
func (r *Registry) Unregister(userID string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.users[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.users, userID)
		}
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionsFor returns a snapshot of the user's connections; empty
// when offline.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.users[userID]
	if len(conns) == 0 {
		return nil
	}
	result := make([]*Conn, 0, len(conns))
	for c := range conns {
		result = append(result, c)
	}
	return result
}

// Counts returns (distinct online users, total connections) for metrics.
func (r *Registry) Counts() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.users {
		conns += len(set)
	}
	return len(r.users), conns
}
